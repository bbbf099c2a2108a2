package oautherr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{TokenBadRequest(CodeInvalidGrant, "x"), http.StatusBadRequest},
		{Unauthorized("bad secret"), http.StatusUnauthorized},
		{ConfigNotFound(repository.ErrConfigurationNotFound), http.StatusBadRequest},
		{Backchannel(KindBackchannelForbidden, CodeAccessDenied, "x"), http.StatusForbidden},
		{ServerError(errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, tc.err.HTTPStatus(), tc.err.Error())
	}
}

func TestFromClassifiesConfigurationNotFound(t *testing.T) {
	err := fmt.Errorf("load client: %w", repository.ErrConfigurationNotFound)
	oe := From(err)
	require.Equal(t, KindConfigNotFound, oe.Kind)
	require.Equal(t, http.StatusBadRequest, oe.HTTPStatus())
}

func TestFromUnwrapsTaggedErrors(t *testing.T) {
	tagged := TokenBadRequest(CodeExpiredToken, "expired")
	oe := From(fmt.Errorf("wrap: %w", tagged))
	require.Same(t, tagged, oe)

	oe = From(errors.New("db down"))
	require.Equal(t, CodeServerError, oe.Code)
}

func TestRedirectify(t *testing.T) {
	target := RedirectTarget{RedirectURI: "https://rp.example/cb", State: "s"}
	err := Redirectify(BadRequest(CodeInvalidScope, "no scope"), target)

	oe := From(err)
	require.True(t, oe.IsRedirectable())
	require.Equal(t, "s", oe.Target.State)

	// sin redirect_uri resoluble se mantiene como bad request
	err = Redirectify(BadRequest(CodeInvalidScope, "no scope"), RedirectTarget{})
	require.False(t, From(err).IsRedirectable())
}
