package logic

import (
	"context"
	"fmt"
	"strings"
)

// Built-in native detections shipped with the binary. Spec files reference
// them by entrypoint name; the example corpus under examples/ exercises
// each one.
func init() {
	MustRegister("aws_console_root_login", rootConsoleLogin)
	MustRegister("aws_iam_user_mfa", iamUserMFA)
	MustRegister("aws_cloudtrail_tamper", cloudTrailTamper)
}

// ============================================================
// aws_console_root_login: root account console sign-in (CloudTrail)
// ============================================================

func rootConsoleLogin() map[string]HookFunc {
	return map[string]HookFunc{
		HookRule: func(_ context.Context, event map[string]interface{}) (interface{}, error) {
			return eventString(event, "eventName") == "ConsoleLogin" &&
				nestedString(event, "userIdentity", "type") == "Root", nil
		},
		HookTitle: func(_ context.Context, event map[string]interface{}) (interface{}, error) {
			ip := eventString(event, "sourceIPAddress")
			if ip == "" {
				ip = "unknown address"
			}
			return "Root console login from " + ip, nil
		},
		HookDedup: func(_ context.Context, event map[string]interface{}) (interface{}, error) {
			return "root-login:" + eventString(event, "sourceIPAddress"), nil
		},
		HookSeverity: func(_ context.Context, event map[string]interface{}) (interface{}, error) {
			// Root without MFA is the worst case
			if nestedString(event, "additionalEventData", "MFAUsed") != "Yes" {
				return "CRITICAL", nil
			}
			return "HIGH", nil
		},
		HookAlertContext: func(_ context.Context, event map[string]interface{}) (interface{}, error) {
			return map[string]interface{}{
				"ip":         eventString(event, "sourceIPAddress"),
				"user_agent": eventString(event, "userAgent"),
				"account":    eventString(event, "recipientAccountId"),
			}, nil
		},
	}
}

// ============================================================
// aws_iam_user_mfa: IAM credential report row must have MFA when a
// console password is enabled
// ============================================================

func iamUserMFA() map[string]HookFunc {
	return map[string]HookFunc{
		HookPolicy: func(_ context.Context, event map[string]interface{}) (interface{}, error) {
			if !eventBool(event, "password_enabled") {
				return true, nil // no console password, nothing to protect
			}
			return eventBool(event, "mfa_active"), nil
		},
		HookTitle: func(_ context.Context, event map[string]interface{}) (interface{}, error) {
			user := eventString(event, "user_name")
			if user == "" {
				return nil, fmt.Errorf("credential report row has no user_name")
			}
			return "MFA disabled for IAM user " + user, nil
		},
		HookGroupingKeys: func(_ context.Context, event map[string]interface{}) (interface{}, error) {
			return []string{eventString(event, "account_id"), eventString(event, "user_name")}, nil
		},
	}
}

// ============================================================
// aws_cloudtrail_tamper: audit trail disabled or deleted (CloudTrail)
// ============================================================

var trailTamperEvents = []string{"StopLogging", "DeleteTrail", "UpdateTrail", "PutEventSelectors"}

func cloudTrailTamper() map[string]HookFunc {
	return map[string]HookFunc{
		HookRule: func(_ context.Context, event map[string]interface{}) (interface{}, error) {
			name := eventString(event, "eventName")
			for _, tamper := range trailTamperEvents {
				if name == tamper {
					return true, nil
				}
			}
			return false, nil
		},
		HookTitle: func(_ context.Context, event map[string]interface{}) (interface{}, error) {
			trail := nestedString(event, "requestParameters", "name")
			if trail == "" {
				trail = "unknown trail"
			}
			return fmt.Sprintf("CloudTrail tampering: %s on %s", eventString(event, "eventName"), trail), nil
		},
		HookDedup: func(_ context.Context, event map[string]interface{}) (interface{}, error) {
			return "trail-tamper:" + nestedString(event, "requestParameters", "name"), nil
		},
		HookSeverity:     staticHook("HIGH"),
		HookDestinations: staticHook([]string{"security-ops"}),
	}
}

// ============================================================
// Helper functions
// ============================================================

// eventString returns the string value for key, or "" when absent or not
// a string.
func eventString(event map[string]interface{}, key string) string {
	if s, ok := event[key].(string); ok {
		return s
	}
	return ""
}

// eventBool returns the boolean value for key. String forms ("true",
// "TRUE") count too: credential report exports carry booleans as text.
func eventBool(event map[string]interface{}, key string) bool {
	switch v := event[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

// nestedString traverses nested maps by the given keys and returns the
// string value at the end of the path, or "".
func nestedString(event map[string]interface{}, keys ...string) string {
	var cur interface{} = event
	for _, k := range keys {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return ""
		}
		cur = m[k]
	}
	if s, ok := cur.(string); ok {
		return s
	}
	return ""
}
