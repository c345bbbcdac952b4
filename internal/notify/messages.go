package notify

import (
	"fmt"
	"strings"

	"github.com/DanaFrie/POC-Joystie-sub000/internal/challenge"
)

// Message is the rendered payload handed to the mailer.
type Message struct {
	Subject  string
	HTMLBody string
	TextBody string
}

type messageTemplate struct {
	subject string
	body    string
}

// messageCatalog maps variant keys to templates. Placeholders: {{parent}},
// {{child}}, {{their}} (gender-aware possessive for the child), {{url}}.
// Full HTML layout and localization are the email collaborator's concern;
// the engine only picks the variant and fills the basics.
var messageCatalog = map[string]messageTemplate{
	"first_day": {
		subject: "{{child}}'s challenge starts today!",
		body:    "Hi {{parent}}, today is day one of {{child}}'s screen-time challenge. Remind {{child}} to upload {{their}} screen time tonight: {{url}}",
	},
	"missing_upload_day_3": {
		subject: "No uploads yet from {{child}}",
		body:    "Hi {{parent}}, the challenge is on its third day and {{child}} hasn't uploaded any screen time yet. A small reminder goes a long way: {{url}}",
	},
	"missing_upload_day_4": {
		subject: "Still waiting for {{child}}'s first upload",
		body:    "Hi {{parent}}, day four and still no uploads from {{child}}. Help {{child}} get {{their}} first report in: {{url}}",
	},
	"missing_upload_day_6": {
		subject: "The week is almost over",
		body:    "Hi {{parent}}, the challenge week ends soon and {{child}} hasn't uploaded anything. There's still time: {{url}}",
	},
	"missing_upload_day_7": {
		subject: "Last chance for {{child}}'s challenge",
		body:    "Hi {{parent}}, today is the last day of the challenge and no screen time was uploaded. One upload still counts: {{url}}",
	},
	"two_pending": {
		subject: "{{child}} is waiting for your approval",
		body:    "Hi {{parent}}, {{child}} has two or more days waiting for your approval. Review them here: {{url}}",
	},
	"first_upload_success": {
		subject: "{{child}} met the goal on day one!",
		body:    "Hi {{parent}}, {{child}} just uploaded {{their}} first screen-time report and met the daily goal. Approve it here: {{url}}",
	},
	"first_upload_failure": {
		subject: "{{child}}'s first upload is in",
		body:    "Hi {{parent}}, {{child}} uploaded {{their}} first screen-time report. The goal wasn't met this time, but showing up counts. Review it here: {{url}}",
	},
}

// BuildMessage renders the variant for the given parent/child pair.
func BuildMessage(variantKey string, parent *challenge.Parent, child *challenge.Child, url string) (Message, error) {
	tpl, ok := messageCatalog[variantKey]
	if !ok {
		return Message{}, fmt.Errorf("unknown message variant %q", variantKey)
	}

	replacer := strings.NewReplacer(
		"{{parent}}", firstNameOr(parent.FirstName, "there"),
		"{{child}}", firstNameOr(child.FirstName, "your child"),
		"{{their}}", possessive(child.Gender),
		"{{url}}", url,
	)

	body := replacer.Replace(tpl.body)
	return Message{
		Subject:  replacer.Replace(tpl.subject),
		HTMLBody: "<p>" + body + "</p>",
		TextBody: body,
	}, nil
}

func firstNameOr(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}

func possessive(gender string) string {
	switch strings.ToLower(gender) {
	case "male", "boy", "m":
		return "his"
	case "female", "girl", "f":
		return "her"
	default:
		return "their"
	}
}
