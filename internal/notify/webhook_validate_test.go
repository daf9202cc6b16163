package notify

import "testing"

// S5 — webhook URL validation.
func TestValidateWebhookURL_Accept(t *testing.T) {
	accepted := []string{
		"https://discord.com/api/webhooks/1/abc",
		"https://canary.discord.com/api/webhooks/1/abc",
		"https://discordapp.com/api/webhooks/1/abc",
		"https://DISCORD.COM/api/webhooks/1/abc",
	}
	for _, raw := range accepted {
		if err := ValidateWebhookURL(raw); err != nil {
			t.Errorf("ValidateWebhookURL(%q) = %v, want nil", raw, err)
		}
	}
}

func TestValidateWebhookURL_Reject(t *testing.T) {
	rejected := []string{
		"",
		"not-a-url",
		"http://discord.com/api/webhooks/1/abc",
		"https://evil.com/api/webhooks/1/abc",
		"https://localhost/api/webhooks/1/abc",
		"https://192.168.1.1/api/webhooks/1/abc",
		"https://fake-discord.com/api/webhooks/1/abc",
		"https://discord.com/channels/1/2",
		"https://discord.com/",
	}
	errs := map[string]bool{}
	for _, raw := range rejected {
		err := ValidateWebhookURL(raw)
		if err == nil {
			t.Errorf("ValidateWebhookURL(%q) = nil, want an error", raw)
			continue
		}
		if errs[err.Error()] {
			t.Errorf("duplicate error text for distinct rejection %q: %v", raw, err)
		}
		errs[err.Error()] = true
	}
}

func TestValidateWebhookURL_IsPure(t *testing.T) {
	const url = "https://discord.com/api/webhooks/1/abc"
	for i := 0; i < 100; i++ {
		if err := ValidateWebhookURL(url); err != nil {
			t.Fatalf("run %d: got error %v, want nil", i, err)
		}
	}
}
