package middleware

import (
	"context"
	"net/http"

	"paygate/internal/auth"
	"paygate/internal/utils"
)

type contextKey string

const MerchantCodeKey contextKey = "merchantCode"

// RequireMerchant rejects requests without a valid merchant bearer token and
// puts the merchant code on the request context.
func RequireMerchant(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := auth.ExtractBearer(r)
		if tokenStr == "" {
			utils.WriteJSONError(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ParseMerchantToken(secret, tokenStr)
		if err != nil {
			utils.WriteJSONError(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), MerchantCodeKey, claims.MerchantCode)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MerchantFromContext returns the merchant code set by RequireMerchant.
func MerchantFromContext(ctx context.Context) (string, bool) {
	code, ok := ctx.Value(MerchantCodeKey).(string)
	return code, ok
}
