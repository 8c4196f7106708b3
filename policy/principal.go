// Package policy wraps the bus with a permission check and models the
// user/role state a command-sending caller is authorized against.
// Grounded on internal/shared/policy/opa.go (policy-check-before-dispatch
// shape), internal/auth/roles.go (Role/Permission/RolePermissions), and
// internal/shared/auth/middleware.go (JWT parsing idiom), generalized from
// OPA's remote HTTP evaluation and static role tables into an in-process
// check against a caller-supplied UserPolicy.
package policy

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/reactivedomain/reactivedomain/messaging"
	"github.com/reactivedomain/reactivedomain/rderrors"
)

// Principal identifies the caller behind a command, carrying the raw JWT
// claims alongside the parsed user id so a handler can consult
// application-specific claims without this package needing to know about
// them.
type Principal struct {
	UserId messaging.MsgId
	Claims jwt.MapClaims
}

// PrincipalFromJWT parses and validates tokenString with keyFunc, then
// builds a Principal from its "sub" claim. Mirrors
// internal/shared/auth/middleware.go's ParseWithClaims call, generalized to
// jwt.MapClaims so this package stays independent of any one service's
// claims struct.
func PrincipalFromJWT(tokenString string, keyFunc jwt.Keyfunc) (Principal, error) {
	token, err := jwt.Parse(tokenString, keyFunc)
	if err != nil {
		return Principal{}, err
	}
	if !token.Valid {
		return Principal{}, rderrors.Authorization("policy.PrincipalFromJWT: invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, rderrors.InvalidOperation("policy.PrincipalFromJWT: unexpected claims type")
	}
	sub, _ := claims["sub"].(string)
	userID, err := messaging.ParseMsgId(sub)
	if err != nil {
		return Principal{}, rderrors.InvalidOperation("policy.PrincipalFromJWT: subject claim is not a MsgId")
	}
	return Principal{UserId: userID, Claims: claims}, nil
}
