package http

import (
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/dropDatabas3/idpserver/internal/oauth"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
	"github.com/dropDatabas3/idpserver/internal/observability/logger"
)

type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	RequestID        string `json:"request_id,omitempty"`
}

// WriteError escribe un error OAuth como body JSON.
func WriteError(w http.ResponseWriter, status int, code, desc string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rid := w.Header().Get(RequestIDHeader)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{
		Error:            code,
		ErrorDescription: desc,
		RequestID:        rid,
	})
}

// WriteJSON: respuesta JSON estándar
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOAuthError mapea err a status y body. Los errores no clasificados se
// loguean completos y al cliente sólo le llega server_error.
func writeOAuthError(w http.ResponseWriter, r *http.Request, err error) {
	oe := oautherr.From(err)
	status := oe.HTTPStatus()
	desc := oe.Description
	if oe.Kind == oautherr.KindServerError {
		logger.From(r.Context()).Error("request failed", logger.Err(err))
		desc = ""
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="idp"`)
	}
	WriteError(w, status, oe.Code, desc)
}

// ReadJSON: decodifica JSON de forma tolerante (NO falla por campos desconocidos).
// Valida Content-Type y limita el tamaño del body a 1MB.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		WriteError(w, http.StatusBadRequest, oautherr.CodeInvalidRequest, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, http.StatusBadRequest, oautherr.CodeInvalidRequest, "malformed JSON body")
		return false
	}
	return true
}

// readForm parsea un body form-urlencoded (1MB máx). Los parámetros de la
// query no se mezclan con los del body.
func readForm(w http.ResponseWriter, r *http.Request) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		WriteError(w, http.StatusBadRequest, oautherr.CodeInvalidRequest, "Content-Type must be application/x-www-form-urlencoded")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := r.ParseForm(); err != nil {
		WriteError(w, http.StatusBadRequest, oautherr.CodeInvalidRequest, "malformed form body")
		return false
	}
	return true
}

var formPostTmpl = template.Must(template.New("form_post").Parse(`<!DOCTYPE html>
<html><head><title>Submit</title></head>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.Action}}">
{{range $k, $vs := .Params}}{{range $vs}}<input type="hidden" name="{{$k}}" value="{{.}}"/>
{{end}}{{end}}<noscript><button type="submit">Continue</button></noscript>
</form></body></html>`))

// writeAuthorizationResponse entrega una respuesta de autorización al user
// agent: 302 para query/fragment, formulario auto-submit para form_post.
func writeAuthorizationResponse(w http.ResponseWriter, r *http.Request, resp oauth.Response) {
	if !resp.IsFormPost() {
		http.Redirect(w, r, resp.Location(), http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; script-src 'unsafe-inline'; frame-ancestors 'none'")
	w.WriteHeader(http.StatusOK)
	if err := formPostTmpl.Execute(w, struct {
		Action string
		Params map[string][]string
	}{resp.RedirectURI, resp.Params}); err != nil {
		logger.From(r.Context()).Warn("form_post render failed", logger.Err(err))
	}
}
