// Package message renders delivery bodies. The scheduler only knows the
// Producer interface; body wording lives here.
package message

import (
	"fmt"
	"math/rand"
	"strings"
)

// Producer renders the body for one delivery occurrence.
type Producer interface {
	Produce(endpoint, messageType, recipient, from string) (string, error)
}

// TemplateProducer is the built-in producer with two endpoints:
//
//	plain: a rotating greeting addressed to the recipient
//	typed: a canned body selected by messageType
type TemplateProducer struct{}

func NewTemplateProducer() *TemplateProducer { return &TemplateProducer{} }

var plainBodies = []string{
	"Hello %s! Hope your day is going well.",
	"Hey %s, just checking in.",
	"Hi %s, a little note to brighten your day.",
}

var typedBodies = map[string]string{
	"reminder": "Hi %s, this is your scheduled reminder.",
	"digest":   "Hello %s, here is your periodic digest.",
	"alert":    "Attention %s: a scheduled alert has fired.",
}

func (p *TemplateProducer) Produce(endpoint, messageType, recipient, from string) (string, error) {
	var body string
	switch endpoint {
	case "plain":
		body = fmt.Sprintf(plainBodies[rand.Intn(len(plainBodies))], recipient)
	case "typed":
		tmpl, ok := typedBodies[strings.ToLower(strings.TrimSpace(messageType))]
		if !ok {
			return "", fmt.Errorf("unknown message type %q", messageType)
		}
		body = fmt.Sprintf(tmpl, recipient)
	default:
		return "", fmt.Errorf("unknown endpoint %q", endpoint)
	}
	if from != "" {
		body += fmt.Sprintf("\n\nFrom: %s", from)
	}
	return body, nil
}

// Types returns the known typed message identifiers, for validation surfaces.
func Types() []string {
	out := make([]string, 0, len(typedBodies))
	for k := range typedBodies {
		out = append(out, k)
	}
	return out
}
