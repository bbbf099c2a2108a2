package request

import (
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/dropDatabas3/idpserver/internal/jose"
	tokens "github.com/dropDatabas3/idpserver/internal/security/token"
)

// Pattern identifica cómo se codificó el request.
type Pattern string

const (
	PatternNormal        Pattern = "normal"
	PatternRequestObject Pattern = "request_object"
	PatternFAPIAdvance   Pattern = "fapi_advance"
)

// SelectPattern elige la factory: sin request object es Normal; con request
// object y perfil FAPI Advance los campos salen sólo del JWT.
func SelectPattern(hasRequestObject bool, profile types.Profile) Pattern {
	switch {
	case !hasRequestObject:
		return PatternNormal
	case profile == types.ProfileFAPIAdvance:
		return PatternFAPIAdvance
	default:
		return PatternRequestObject
	}
}

// Input son las entradas ya resueltas de una factory.
type Input struct {
	TenantID string
	Profile  types.Profile
	// Scopes ya filtrados por los registrados del client.
	Scopes        types.Scopes
	Params        Parameters
	RequestObject *jose.SignedJWT
	Server        repository.ServerConfiguration
	Client        repository.ClientConfiguration
	Now           time.Time
}

// Factory construye el AuthorizationRequest. No persiste nada: los errores
// sintácticos quedan en Validity para que los rechace el verifier.
type Factory interface {
	Create(in Input) (repository.AuthorizationRequest, error)
}

var errNoRequestObject = errors.New("request: factory requires a verified request object")

var factories = map[Pattern]Factory{
	PatternNormal:        normalFactory{},
	PatternRequestObject: requestObjectFactory{},
	PatternFAPIAdvance:   fapiAdvanceFactory{},
}

// FactoryFor devuelve la factory del patrón. Un patrón desconocido es un error.
func FactoryFor(p Pattern) (Factory, error) {
	f, ok := factories[p]
	if !ok {
		return nil, fmt.Errorf("request: unknown pattern %q", p)
	}
	return f, nil
}

type normalFactory struct{}

func (normalFactory) Create(in Input) (repository.AuthorizationRequest, error) {
	return build(in, paramSource(in.Params), in.Params.ClientID(), in.Params.CustomParams(), true)
}

// requestObjectFactory: un campo del JWT pisa al parámetro del mismo nombre.
type requestObjectFactory struct{}

func (requestObjectFactory) Create(in Input) (repository.AuthorizationRequest, error) {
	if in.RequestObject == nil {
		return repository.AuthorizationRequest{}, errNoRequestObject
	}
	clientID := in.RequestObject.String(ParamClientID)
	if clientID == "" {
		clientID = in.Params.ClientID()
	}
	if clientID == "" {
		clientID = in.Client.ClientID
	}
	src := overlay{primary: claimSource(in.RequestObject.Claims), fallback: paramSource(in.Params)}
	custom := in.Params.CustomParams()
	for k, v := range customClaims(in.RequestObject.Claims) {
		if custom == nil {
			custom = map[string]string{}
		}
		custom[k] = v
	}
	return build(in, src, clientID, custom, true)
}

// fapiAdvanceFactory ignora por completo los parámetros sueltos.
type fapiAdvanceFactory struct{}

func (fapiAdvanceFactory) Create(in Input) (repository.AuthorizationRequest, error) {
	if in.RequestObject == nil {
		return repository.AuthorizationRequest{}, errNoRequestObject
	}
	clientID := in.RequestObject.String(ParamClientID)
	if clientID == "" {
		clientID = in.Client.ClientID
	}
	return build(in, claimSource(in.RequestObject.Claims), clientID, customClaims(in.RequestObject.Claims), false)
}

func build(in Input, src source, clientID string, custom map[string]string, defaultMaxAge bool) (repository.AuthorizationRequest, error) {
	id, err := tokens.NewIdentifier()
	if err != nil {
		return repository.AuthorizationRequest{}, fmt.Errorf("request: identifier: %w", err)
	}
	now := in.Now.UTC()
	req := repository.AuthorizationRequest{
		ID:            id,
		TenantID:      in.TenantID,
		Profile:       in.Profile,
		Scopes:        in.Scopes,
		ClientID:      clientID,
		RedirectURI:   get(src, ParamRedirectURI),
		State:         get(src, ParamState),
		Nonce:         get(src, ParamNonce),
		Display:       get(src, ParamDisplay),
		UILocales:     get(src, ParamUILocales),
		ClaimsLocales: get(src, ParamClaimsLocales),
		IDTokenHint:   get(src, ParamIDTokenHint),
		LoginHint:     get(src, ParamLoginHint),
		ACRValues:     get(src, ParamACRValues),
		ClaimsValue:   get(src, ParamClaims),
		Request:       in.Params.Get(ParamRequest),
		RequestURI:    in.Params.Get(ParamRequestURI),
		CustomParams:  custom,
		CreatedAt:     now,
		ExpiresAt:     now.Add(in.Server.AuthorizationRequestTTL()),
	}

	if raw, ok := src.lookup(ParamResponseType); ok {
		if rt, valid := types.ParseResponseType(raw); valid {
			req.ResponseType = rt
		} else {
			req.Validity.UnknownResponseType = true
		}
	}
	if mode, valid := types.ParseResponseMode(get(src, ParamResponseMode)); valid {
		req.ResponseMode = mode
	} else {
		req.Validity.InvalidResponseMode = true
	}
	req.Validity.InvalidDisplay = !types.ValidDisplay(req.Display)

	if prompts, valid := types.ParsePrompts(get(src, ParamPrompt)); valid {
		req.Prompts = prompts
	} else {
		req.Validity.InvalidPrompt = true
	}

	maxAge, valid := parseMaxAge(get(src, ParamMaxAge))
	req.Validity.InvalidMaxAge = !valid
	if maxAge == nil && defaultMaxAge && in.Server.DefaultMaxAge > 0 {
		v := in.Server.DefaultMaxAge
		maxAge = &v
	}
	req.MaxAge = maxAge

	claims, err := repository.ParseRequestedClaims(req.ClaimsValue)
	if err != nil {
		req.Validity.InvalidClaims = true
	}
	req.RequestedClaims = claims

	details, err := repository.ParseAuthorizationDetails(get(src, ParamAuthorizationDetails))
	if err != nil {
		req.Validity.InvalidAuthorizationDetails = true
	}
	req.AuthorizationDetails = details

	if challenge, ok := src.lookup(ParamCodeChallenge); ok {
		method, valid := types.ParseCodeChallengeMethod(get(src, ParamCodeChallengeMethod))
		if valid {
			req.PKCE = &repository.PKCEChallenge{Challenge: challenge, Method: method}
		} else {
			req.Validity.InvalidCodeChallengeMethod = true
		}
	}
	return req, nil
}
