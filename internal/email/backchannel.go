package email

import (
	"bytes"
	htmltpl "html/template"
	texttpl "text/template"
)

// BackchannelNotice son los datos del aviso de una autenticación CIBA.
type BackchannelNotice struct {
	To             string
	UserName       string
	ClientName     string
	Scopes         string
	BindingMessage string
}

const noticeSubject = "Solicitud de autorización pendiente"

var (
	noticeText = texttpl.Must(texttpl.New("notice_txt").Parse(`Hola {{if .UserName}}{{.UserName}}{{else}}{{.To}}{{end}},

{{.ClientName}} solicita acceso a tu cuenta ({{.Scopes}}).
{{- if .BindingMessage}}

Código de verificación: {{.BindingMessage}}
{{- end}}

Si no iniciaste esta solicitud, recházala.
`))

	noticeHTML = htmltpl.Must(htmltpl.New("notice_html").Parse(`<p>Hola {{if .UserName}}{{.UserName}}{{else}}{{.To}}{{end}},</p>
<p><strong>{{.ClientName}}</strong> solicita acceso a tu cuenta ({{.Scopes}}).</p>
{{- if .BindingMessage}}
<p>Código de verificación: <code>{{.BindingMessage}}</code></p>
{{- end}}
<p>Si no iniciaste esta solicitud, recházala.</p>
`))
)

// Render arma el Message del aviso.
func (n BackchannelNotice) Render() (Message, error) {
	var txt, html bytes.Buffer
	if err := noticeText.Execute(&txt, n); err != nil {
		return Message{}, err
	}
	if err := noticeHTML.Execute(&html, n); err != nil {
		return Message{}, err
	}
	return Message{To: n.To, Subject: noticeSubject, Text: txt.String(), HTML: html.String()}, nil
}
