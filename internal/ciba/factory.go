package ciba

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/dropDatabas3/idpserver/internal/jose"
	"github.com/dropDatabas3/idpserver/internal/oauth/request"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
	tokens "github.com/dropDatabas3/idpserver/internal/security/token"
)

// Parámetros del backchannel authentication endpoint (CIBA §7.1).
const (
	ParamScope                   = "scope"
	ParamClientNotificationToken = "client_notification_token"
	ParamACRValues               = "acr_values"
	ParamLoginHintToken          = "login_hint_token"
	ParamIDTokenHint             = "id_token_hint"
	ParamLoginHint               = "login_hint"
	ParamBindingMessage          = "binding_message"
	ParamUserCode                = "user_code"
	ParamRequestedExpiry         = "requested_expiry"
	ParamRequest                 = "request"
	ParamAuthorizationDetails    = "authorization_details"
)

// source resuelve un parámetro; ok es false si no vino.
type source func(name string) (string, bool)

func paramSource(form url.Values) source {
	return func(name string) (string, bool) {
		v := form.Get(name)
		return v, v != ""
	}
}

func claimSource(ro *jose.SignedJWT) source {
	return func(name string) (string, bool) { return request.ClaimString(ro.Claims, name) }
}

// overlay prioriza primary parámetro por parámetro.
func overlay(primary, fallback source) source {
	return func(name string) (string, bool) {
		if v, ok := primary(name); ok {
			return v, true
		}
		return fallback(name)
	}
}

// Pattern identifica cómo llegó el request.
type Pattern string

const (
	PatternNormal        Pattern = "normal"
	PatternRequestObject Pattern = "request_object"
	// PatternFAPI toma los campos sólo del request object firmado.
	PatternFAPI Pattern = "fapi"
)

// SelectPattern elige la factory según el request object y el perfil.
func SelectPattern(hasRequestObject bool, profile types.Profile) Pattern {
	switch {
	case !hasRequestObject:
		return PatternNormal
	case profile.IsFAPI():
		return PatternFAPI
	default:
		return PatternRequestObject
	}
}

// Input son las entradas ya resueltas de una factory.
type Input struct {
	TenantID      string
	Profile       types.Profile
	Scopes        types.Scopes // ya filtrados
	Form          url.Values
	RequestObject *jose.SignedJWT
	Client        repository.ClientConfiguration
	// MaxExpiry es el tope de requested_expiry en segundos; 0 no acota.
	MaxExpiry     int64
	Now           time.Time
}

// Factory construye el BackchannelAuthenticationRequest sin persistirlo.
type Factory interface {
	Create(in Input) (repository.BackchannelAuthenticationRequest, error)
}

var factories = map[Pattern]Factory{
	PatternNormal:        normalFactory{},
	PatternRequestObject: requestObjectFactory{},
	PatternFAPI:          fapiFactory{},
}

// FactoryFor falla ante un patrón desconocido.
func FactoryFor(p Pattern) (Factory, error) {
	f, ok := factories[p]
	if !ok {
		return nil, fmt.Errorf("ciba: unknown pattern %q", p)
	}
	return f, nil
}

type normalFactory struct{}

func (normalFactory) Create(in Input) (repository.BackchannelAuthenticationRequest, error) {
	return build(in, paramSource(in.Form))
}

type requestObjectFactory struct{}

func (requestObjectFactory) Create(in Input) (repository.BackchannelAuthenticationRequest, error) {
	if in.RequestObject == nil {
		return repository.BackchannelAuthenticationRequest{}, fmt.Errorf("ciba: request object pattern without request object")
	}
	return build(in, overlay(claimSource(in.RequestObject), paramSource(in.Form)))
}

type fapiFactory struct{}

func (fapiFactory) Create(in Input) (repository.BackchannelAuthenticationRequest, error) {
	if in.RequestObject == nil {
		return repository.BackchannelAuthenticationRequest{}, fmt.Errorf("ciba: fapi pattern without request object")
	}
	return build(in, claimSource(in.RequestObject))
}

func build(in Input, src source) (repository.BackchannelAuthenticationRequest, error) {
	get := func(name string) string {
		v, _ := src(name)
		return v
	}
	id, err := tokens.NewIdentifier()
	if err != nil {
		return repository.BackchannelAuthenticationRequest{}, err
	}
	req := repository.BackchannelAuthenticationRequest{
		ID:                      id,
		TenantID:                in.TenantID,
		Profile:                 in.Profile,
		DeliveryMode:            in.Client.DeliveryMode(),
		Scopes:                  in.Scopes,
		ClientID:                in.Client.ClientID,
		ClientNotificationToken: get(ParamClientNotificationToken),
		LoginHint:               get(ParamLoginHint),
		LoginHintToken:          get(ParamLoginHintToken),
		IDTokenHint:             get(ParamIDTokenHint),
		ACRValues:               get(ParamACRValues),
		BindingMessage:          get(ParamBindingMessage),
		UserCode:                get(ParamUserCode),
		CreatedAt:               in.Now,
	}
	if in.RequestObject != nil {
		req.Request = in.RequestObject.Raw
	}
	if raw := get(ParamRequestedExpiry); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return repository.BackchannelAuthenticationRequest{}, badRequest(oautherr.CodeInvalidRequest, "requested_expiry must be a positive integer")
		}
		if in.MaxExpiry > 0 && n > in.MaxExpiry {
			return repository.BackchannelAuthenticationRequest{}, badRequest(oautherr.CodeInvalidRequest,
				fmt.Sprintf("requested_expiry must not exceed %d seconds", in.MaxExpiry))
		}
		req.RequestedExpiry = &n
	}
	details, err := repository.ParseAuthorizationDetails(get(ParamAuthorizationDetails))
	if err != nil {
		return repository.BackchannelAuthenticationRequest{}, badRequest(oautherr.CodeInvalidAuthzDetails, "authorization_details is malformed")
	}
	req.AuthorizationDetails = details
	return req, nil
}

func badRequest(code, desc string) *oautherr.Error {
	return oautherr.Backchannel(oautherr.KindBackchannelBadRequest, code, desc)
}
