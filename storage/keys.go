package storage

import "fmt"

// Keys written by the session store
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyPrincipal    = "user"
	KeyRememberMe   = "remember_me"
	KeyLoginTime    = "login_time"
)

// Keys written by the dependent stores
const (
	KeyOnboarding           = "onboarding-storage"
	KeyPlaygroundAPIKey     = "playground_api_key"
	KeyPlaygroundAPIKeyTemp = "playground_api_key_temp"
)

// RecommendationsKey is the per-user cache of the last recommendation result
func RecommendationsKey(userID string) string {
	return fmt.Sprintf("last_recommendations_%s", userID)
}
