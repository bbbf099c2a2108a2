package request

import (
	"slices"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/dropDatabas3/idpserver/internal/jose"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
)

// Context es el resultado de la factory junto con todo lo que necesitan los
// verifiers: configuración, patrón y el request object verificado.
type Context struct {
	Pattern       Pattern
	Params        Parameters
	Request       repository.AuthorizationRequest
	Server        repository.ServerConfiguration
	Client        repository.ClientConfiguration
	RequestObject *jose.SignedJWT
	Now           time.Time
}

// IsRequestObjectPattern indica que el request vino con request object.
func (c *Context) IsRequestObjectPattern() bool { return c.RequestObject != nil }

// IsUnsignedRequestObject indica un request object con alg "none".
func (c *Context) IsUnsignedRequestObject() bool {
	return c.RequestObject != nil && c.RequestObject.Alg == jose.AlgNone
}

// RedirectURI devuelve la redirect_uri efectiva: la del request o, si no vino,
// la única registrada. Vacía si no es resoluble.
func (c *Context) RedirectURI() string {
	if c.Request.HasRedirectURI() {
		return c.Request.RedirectURI
	}
	if len(c.Client.RedirectURIs) == 1 {
		return c.Client.RedirectURIs[0]
	}
	return ""
}

// Target devuelve el destino de un error redirigible. Sólo se redirige a una
// URI registrada; en otro caso el target queda vacío.
func (c *Context) Target() oautherr.RedirectTarget {
	uri := c.RedirectURI()
	if uri == "" || !c.Client.IsRegisteredRedirectURI(uri) {
		return oautherr.RedirectTarget{}
	}
	return oautherr.RedirectTarget{
		RedirectURI:  uri,
		ResponseMode: c.Request.ResponseMode,
		ResponseType: c.Request.ResponseType,
		State:        c.Request.State,
		ClientID:     c.Client.ClientID,
		TenantID:     c.Request.TenantID,
		Issuer:       c.Server.Issuer,
	}
}

// ParamTarget resuelve el destino de un error detectado antes de construir el
// request. Igual que Target, sólo redirige a una URI registrada del client.
func ParamTarget(tenantID string, p Parameters, server repository.ServerConfiguration, client repository.ClientConfiguration) oautherr.RedirectTarget {
	uri := p.RedirectURI()
	if uri == "" && len(client.RedirectURIs) == 1 {
		uri = client.RedirectURIs[0]
	}
	if uri == "" || !client.IsRegisteredRedirectURI(uri) {
		return oautherr.RedirectTarget{}
	}
	rt, _ := types.ParseResponseType(p.Get(ParamResponseType))
	mode, ok := types.ParseResponseMode(p.Get(ParamResponseMode))
	if !ok || !server.SupportsResponseMode(mode) {
		mode = types.ResponseModeUndefined
	}
	return oautherr.RedirectTarget{
		RedirectURI:  uri,
		ResponseMode: mode,
		ResponseType: rt,
		State:        p.Get(ParamState),
		ClientID:     client.ClientID,
		TenantID:     tenantID,
		Issuer:       server.Issuer,
	}
}

// ResolveClientID obtiene el client_id antes de cargar la configuración:
// el parámetro, o el claim client_id (o iss) del request object sin verificar.
func ResolveClientID(p Parameters) string {
	if id := p.ClientID(); id != "" {
		return id
	}
	if !p.HasRequestObject() {
		return ""
	}
	claims := jwtv5.MapClaims{}
	if _, _, err := jwtv5.NewParser().ParseUnverified(p.Get(ParamRequest), claims); err != nil {
		return ""
	}
	if id, _ := claims[ParamClientID].(string); id != "" {
		return id
	}
	iss, _ := claims.GetIssuer()
	return iss
}

// Build verifica el request object (si vino), filtra scopes, identifica el
// perfil y ejecuta la factory correspondiente.
func Build(tenantID string, p Parameters, server repository.ServerConfiguration, client repository.ClientConfiguration, now time.Time) (*Context, error) {
	var ro *jose.SignedJWT
	if p.HasRequestObject() {
		var err error
		ro, err = VerifyRequestObject(p.Get(ParamRequest), server, client, now)
		if err != nil {
			return nil, err
		}
		if id := ro.String(ParamClientID); id != "" && p.ClientID() != "" && id != p.ClientID() {
			return nil, oautherr.BadRequest(oautherr.CodeInvalidRequestObject, "client_id in request object does not match")
		}
	}

	scopes := client.FilterScopes(types.ParseScopes(scopeValue(p, ro)))
	profile := types.IdentifyProfile(scopes, server.FapiBaselineScopes, server.FapiAdvanceScopes)
	pattern := SelectPattern(ro != nil, profile)
	if pattern == PatternFAPIAdvance {
		scopes = client.FilterScopes(types.ParseScopes(ro.String(ParamScope)))
	}

	f, err := FactoryFor(pattern)
	if err != nil {
		return nil, oautherr.ServerError(err)
	}
	req, err := f.Create(Input{
		TenantID:      tenantID,
		Profile:       profile,
		Scopes:        scopes,
		Params:        p,
		RequestObject: ro,
		Server:        server,
		Client:        client,
		Now:           now,
	})
	if err != nil {
		return nil, oautherr.ServerError(err)
	}
	return &Context{
		Pattern:       pattern,
		Params:        p,
		Request:       req,
		Server:        server,
		Client:        client,
		RequestObject: ro,
		Now:           now,
	}, nil
}

func scopeValue(p Parameters, ro *jose.SignedJWT) string {
	if ro != nil && ro.String(ParamScope) != "" {
		return ro.String(ParamScope)
	}
	return p.Get(ParamScope)
}

// RequestObjectAlgs devuelve los algoritmos aceptados para el client: los del
// server, restringidos al registrado por el client. "none" sólo se acepta si
// el client lo registró explícitamente.
func RequestObjectAlgs(server repository.ServerConfiguration, client repository.ClientConfiguration) []string {
	registered := client.RequestObjectSigningAlg
	if registered == jose.AlgNone {
		return []string{jose.AlgNone}
	}
	var out []string
	for _, alg := range server.RequestObjectSigningAlgValuesSupported {
		if alg == jose.AlgNone {
			continue
		}
		if registered == "" || registered == alg {
			out = append(out, alg)
		}
	}
	return out
}

// VerifyRequestObject verifica firma, exp/nbf y, si vienen, iss y aud.
func VerifyRequestObject(raw string, server repository.ServerConfiguration, client repository.ClientConfiguration, now time.Time) (*jose.SignedJWT, error) {
	algs := RequestObjectAlgs(server, client)
	if len(algs) == 0 {
		return nil, oautherr.BadRequest(oautherr.CodeRequestNotSupported, "request object is not supported for this client")
	}

	keyfunc := func(*jwtv5.Token) (any, error) { return nil, jose.ErrNoJWKS }
	if set, err := jose.ParseJWKS(client.JWKS); err == nil {
		keyfunc = jose.Keyfunc(set)
	}
	ro, err := jose.Verify(raw, keyfunc, jose.VerifyOptions{
		Algs: algs,
		Now:  func() time.Time { return now },
	})
	if err != nil {
		return nil, oautherr.BadRequest(oautherr.CodeInvalidRequestObject, "request object verification failed").WithCause(err)
	}
	if iss := ro.String("iss"); iss != "" && iss != client.ClientID {
		return nil, oautherr.BadRequest(oautherr.CodeInvalidRequestObject, "request object iss must be the client_id")
	}
	if aud := ro.Audience(); len(aud) > 0 && !slices.Contains(aud, server.Issuer) {
		return nil, oautherr.BadRequest(oautherr.CodeInvalidRequestObject, "request object aud must contain the issuer")
	}
	if ro.Has(ParamRequest) || ro.Has(ParamRequestURI) {
		return nil, oautherr.BadRequest(oautherr.CodeInvalidRequestObject, "request object must not contain request or request_uri")
	}
	return ro, nil
}
