package ai

import (
	"strings"
	"text/template"
)

const systemPrompt = "You facilitate a small-group online discussion among middle-school students. " +
	"You speak rarely, briefly and warmly, and you never take a side on the topic."

var turnTemplate = template.Must(template.New("turn").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`Discussion topic: {{.Topic}}
Active participants: {{len .ActiveMembers}}{{if .ActiveMembers}} ({{join .ActiveMembers ", "}}){{end}}

Read the conversation below and decide whether the group needs you right now. Step in only if:
1. someone has drifted off topic or is being unkind,
2. a few voices dominate while others have gone quiet,
3. opinions are given without reasons or examples,
4. the group is agreeing too fast without looking at another side,
5. the conversation has stalled or is going in circles,
6. a strong idea is being ignored and deserves a follow-up.

If none of these apply, answer with exactly ` + NoResponseMarker + ` and nothing else.
Otherwise write one short message to the whole group (at most three sentences). Do not start with your name.

Conversation so far:
{{range .History}}{{.Author}}: {{.Content}}
{{end}}`))

// BuildPrompt renders the user turn sent to the completion service
func BuildPrompt(req Request) (string, error) {
	var b strings.Builder
	if err := turnTemplate.Execute(&b, req); err != nil {
		return "", err
	}
	return b.String(), nil
}
