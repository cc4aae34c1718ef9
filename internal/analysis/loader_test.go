package analysis

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/detlab-project/detlab/internal/logic"
)

func loadTree(t *testing.T, files map[string]string) *LoadResult {
	t.Helper()
	fsys := fstest.MapFS{}
	for name, content := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(content)}
	}
	res, err := Load(fsys)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return res
}

const rootLoginSpec = `
AnalysisType: rule
RuleID: AWS.Console.RootLogin
DisplayName: Root console login
Severity: Critical
LogTypes:
  - AWS.CloudTrail
Tags:
  - aws
Logic:
  Provider: expr
  Match: 'eventName == "ConsoleLogin" && userIdentity.type == "Root"'
  Title: '"Root login from " + sourceIPAddress'
Tests:
  - Name: root login
    ExpectedResult: true
    Log:
      eventName: ConsoleLogin
      sourceIPAddress: 1.2.3.4
      userIdentity:
        type: Root
  - Name: iam user login
    ExpectedResult: false
    Log:
      eventName: ConsoleLogin
      userIdentity:
        type: IAMUser
`

func TestKind_PrimaryHook(t *testing.T) {
	if got := KindPolicy.PrimaryHook(); got != logic.HookPolicy {
		t.Errorf("policy hook = %q", got)
	}
	for _, k := range []Kind{KindRule, KindGlobal} {
		if got := k.PrimaryHook(); got != logic.HookRule {
			t.Errorf("%s hook = %q", k, got)
		}
	}
}

func TestKind_RequiresTests(t *testing.T) {
	for k, want := range map[Kind]bool{
		KindRule: true, KindPolicy: true, KindGlobal: false, KindQuery: false,
	} {
		if got := k.RequiresTests(); got != want {
			t.Errorf("%s.RequiresTests() = %v, want %v", k, got, want)
		}
	}
}

func TestLoad_ValidRuleSpec(t *testing.T) {
	res := loadTree(t, map[string]string{"rules/root_login.yml": rootLoginSpec})
	if len(res.Invalid) != 0 {
		t.Fatalf("invalid specs: %+v", res.Invalid)
	}
	if len(res.Detections) != 1 {
		t.Fatalf("got %d detections, want 1", len(res.Detections))
	}
	det := res.Detections[0]
	if det.ID != "AWS.Console.RootLogin" {
		t.Errorf("ID = %q", det.ID)
	}
	if det.Kind != KindRule {
		t.Errorf("Kind = %q", det.Kind)
	}
	if !det.Enabled {
		t.Error("Enabled should default to true")
	}
	if det.SourcePath != "rules/root_login.yml" {
		t.Errorf("SourcePath = %q", det.SourcePath)
	}
	if det.Logic == nil {
		t.Fatal("Logic not bound")
	}
	if len(det.Tests) != 2 {
		t.Fatalf("got %d tests", len(det.Tests))
	}
	if det.Tests[0].Name != "root login" || !det.Tests[0].ExpectedResult {
		t.Errorf("first test = %+v", det.Tests[0])
	}
	if det.Tests[0].Event["eventName"] != "ConsoleLogin" {
		t.Errorf("test event = %v", det.Tests[0].Event)
	}
}

func TestLoad_MetaHoldsScalarFieldsOnly(t *testing.T) {
	res := loadTree(t, map[string]string{"r.yml": rootLoginSpec})
	det := res.Detections[0]
	if v, _ := det.MetaValue("AnalysisType"); v != "rule" {
		t.Errorf("AnalysisType meta = %q", v)
	}
	if v, _ := det.MetaValue("Severity"); v != "Critical" {
		t.Errorf("Severity meta = %q", v)
	}
	for _, key := range []string{"LogTypes", "Tags", "Logic", "Tests"} {
		if _, ok := det.MetaValue(key); ok {
			t.Errorf("non-scalar field %s leaked into Meta", key)
		}
	}
}

func TestLoad_PolicyUsesResourcePayload(t *testing.T) {
	res := loadTree(t, map[string]string{"p.yml": `
AnalysisType: policy
PolicyID: AWS.IAM.MFAEnabled
Severity: Medium
Logic:
  Provider: expr
  Match: 'mfa_active == true'
Tests:
  - Name: mfa enabled
    ExpectedResult: true
    Resource:
      mfa_active: true
    ExpectedTitle: MFA check
`})
	if len(res.Invalid) != 0 {
		t.Fatalf("invalid specs: %+v", res.Invalid)
	}
	det := res.Detections[0]
	if det.Kind != KindPolicy {
		t.Errorf("Kind = %q", det.Kind)
	}
	tc := det.Tests[0]
	if tc.Event["mfa_active"] != true {
		t.Errorf("policy test event = %v", tc.Event)
	}
	if tc.ExpectedTitle == nil || *tc.ExpectedTitle != "MFA check" {
		t.Errorf("ExpectedTitle = %v", tc.ExpectedTitle)
	}
}

func TestLoad_DisabledSpec(t *testing.T) {
	res := loadTree(t, map[string]string{"d.yml": `
AnalysisType: rule
RuleID: Disabled.Rule
Enabled: false
Logic:
  Provider: expr
  Match: 'true == true'
`})
	det := res.Detections[0]
	if det.Enabled {
		t.Error("Enabled = true, want false")
	}
	if v, _ := det.MetaValue("Enabled"); v != "false" {
		t.Errorf("Enabled meta = %q", v)
	}
}

func TestLoad_GlobalWithoutLogicIsValid(t *testing.T) {
	res := loadTree(t, map[string]string{"g.yml": `
AnalysisType: global
GlobalID: Helpers.AWS
Description: shared helpers
`})
	if len(res.Invalid) != 0 {
		t.Fatalf("invalid specs: %+v", res.Invalid)
	}
	if res.Detections[0].Logic != nil {
		t.Error("global without Logic should stay unbound")
	}
}

func TestLoad_InvalidSpecsCollected(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "not a mapping",
			content: "- just\n- a list\n",
			wantErr: "parse yaml",
		},
		{
			name:    "unknown analysis type",
			content: "AnalysisType: datamodel\nRuleID: X\n",
			wantErr: `unknown AnalysisType "datamodel"`,
		},
		{
			name:    "missing analysis type",
			content: "RuleID: X\n",
			wantErr: "missing AnalysisType",
		},
		{
			name:    "missing kind id",
			content: "AnalysisType: policy\nLogic:\n  Provider: expr\n  Match: 'true == true'\n",
			wantErr: "missing PolicyID",
		},
		{
			name:    "rule without logic",
			content: "AnalysisType: rule\nRuleID: X\n",
			wantErr: "declares no Logic",
		},
		{
			name:    "query with logic",
			content: "AnalysisType: query\nQueryID: Q\nLogic:\n  Provider: expr\n  Match: 'true == true'\n",
			wantErr: "must not declare Logic",
		},
		{
			name:    "tests without logic",
			content: "AnalysisType: global\nGlobalID: G\nTests:\n  - Name: t1\n    ExpectedResult: true\n",
			wantErr: "no Logic to run them",
		},
		{
			name:    "duplicate test names",
			content: rootLoginSpec + "  - Name: root login\n    ExpectedResult: true\n",
			wantErr: `duplicate test name "root login"`,
		},
		{
			name:    "unnamed test",
			content: "AnalysisType: rule\nRuleID: X\nLogic:\n  Provider: expr\n  Match: 'true == true'\nTests:\n  - ExpectedResult: true\n",
			wantErr: "has no Name",
		},
		{
			name:    "bind failure",
			content: "AnalysisType: rule\nRuleID: X\nLogic:\n  Provider: expr\n  Match: 'eventName =='\n",
			wantErr: "bind logic",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := loadTree(t, map[string]string{"spec.yml": tc.content})
			if len(res.Detections) != 0 {
				t.Fatalf("detections = %d, want 0", len(res.Detections))
			}
			if len(res.Invalid) != 1 {
				t.Fatalf("invalid = %d, want 1", len(res.Invalid))
			}
			inv := res.Invalid[0]
			if inv.Path != "spec.yml" {
				t.Errorf("Path = %q", inv.Path)
			}
			if !strings.Contains(inv.Err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", inv.Err, tc.wantErr)
			}
		})
	}
}

func TestLoad_DuplicateIDKeepsFirst(t *testing.T) {
	spec := `
AnalysisType: rule
RuleID: Same.ID
Logic:
  Provider: expr
  Match: 'true == true'
`
	res := loadTree(t, map[string]string{"a.yml": spec, "b.yml": spec})
	if len(res.Detections) != 1 || res.Detections[0].SourcePath != "a.yml" {
		t.Fatalf("detections = %+v", res.Detections)
	}
	if len(res.Invalid) != 1 || res.Invalid[0].Path != "b.yml" {
		t.Fatalf("invalid = %+v", res.Invalid)
	}
	if !strings.Contains(res.Invalid[0].Err.Error(), "duplicate detection id") {
		t.Errorf("error = %v", res.Invalid[0].Err)
	}
}

func TestLoad_LexicalOrder(t *testing.T) {
	spec := func(id string) string {
		return "AnalysisType: global\nGlobalID: " + id + "\n"
	}
	res := loadTree(t, map[string]string{
		"c.yml":      spec("C"),
		"a.yml":      spec("A"),
		"b/spec.yml": spec("B"),
	})
	var got []string
	for _, det := range res.Detections {
		got = append(got, det.SourcePath)
	}
	want := []string{"a.yml", "b/spec.yml", "c.yml"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestLoad_IgnoresNonSpecFiles(t *testing.T) {
	res := loadTree(t, map[string]string{
		"README.md":   "# detections",
		"sample.json": `{"eventName": "ConsoleLogin"}`,
		"r.yml":       "AnalysisType: global\nGlobalID: G\n",
	})
	if len(res.Detections) != 1 || len(res.Invalid) != 0 {
		t.Fatalf("detections = %d, invalid = %d", len(res.Detections), len(res.Invalid))
	}
}
