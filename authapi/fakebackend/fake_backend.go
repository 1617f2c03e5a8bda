// Package fakebackend serves the consumer site and console auth endpoints from an
// httptest.Server so the session client can be exercised end to end.
package fakebackend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Movigation/moviesir-session/internal/config"
	"github.com/Movigation/moviesir-session/tenants"
	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultPassword = "password123"
	DeletedEmail    = "deleted@moviesir.cloud"
	DeniedCode      = "access_denied"
)

var signingKey = []byte("fake-backend-signing-key")

// Account is a consumer user or a console company known to the backend
type Account struct {
	ID       string
	Email    string
	Nickname string
	Name     string
	Plan     string
	Password string
	Company  bool
}

// Backend is a scripted tenant backend
type Backend struct {
	Server *httptest.Server

	RefreshCalls atomic.Int32
	LogoutCalls  atomic.Int32
	LoginCalls   atomic.Int32
	FetchCalls   atomic.Int32

	mu            sync.Mutex
	accounts      map[string]*Account // by email
	accessTokens  map[string]string   // token -> account id
	refreshTokens map[string]string   // token -> account id
	failRefresh   bool
	failLogout    bool
	refreshGate   chan struct{}
	tokenTTL      time.Duration
	serial        int
}

// New starts a backend seeded with one consumer user and one console company
func New() *Backend {
	b := &Backend{
		accounts:      map[string]*Account{},
		accessTokens:  map[string]string{},
		refreshTokens: map[string]string{},
		tokenTTL:      15 * time.Minute,
	}
	b.AddAccount(&Account{ID: "42", Email: "jane@moviesir.cloud", Nickname: "jane", Password: DefaultPassword})
	b.AddAccount(&Account{ID: "7", Email: "ops@studio.example", Name: "Studio", Plan: "free", Password: DefaultPassword, Company: true})
	b.AddAccount(&Account{ID: "99", Email: DeletedEmail, Nickname: "gone", Password: DefaultPassword})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", b.login(false))
	mux.HandleFunc("POST /auth/refresh", b.refresh)
	mux.HandleFunc("POST /auth/logout", b.logout)
	mux.HandleFunc("GET /users/{id}", b.principal)
	mux.HandleFunc("POST /b2b/auth/login", b.login(true))
	mux.HandleFunc("POST /b2b/auth/{provider}/callback", b.oauthCallback)
	mux.HandleFunc("POST /b2b/auth/refresh", b.refresh)
	mux.HandleFunc("POST /b2b/auth/logout", b.logout)
	mux.HandleFunc("GET /b2b/me", b.principal)
	mux.HandleFunc("/movies", b.movies)
	mux.HandleFunc("/status/{code}", b.status)
	b.Server = httptest.NewServer(mux)
	return b
}

func (b *Backend) Close() {
	b.Server.Close()
}

// URL returns the base url of the backend
func (b *Backend) URL() string {
	return b.Server.URL
}

// Tenants returns the consumer and console profiles pointing at this backend
func (b *Backend) Tenants() []*tenants.Tenant {
	return tenants.Defaults(backendURLs(b.Server.URL))
}

// Tenant returns the profile for id
func (b *Backend) Tenant(id string) *tenants.Tenant {
	for _, t := range b.Tenants() {
		if t.ID == id {
			return t
		}
	}
	panic("fakebackend: unknown tenant " + id)
}

func (b *Backend) AddAccount(a *Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[a.Email] = a
}

// SetFailRefresh makes every refresh answer 401
func (b *Backend) SetFailRefresh(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failRefresh = fail
}

// SetFailLogout makes logout answer 500
func (b *Backend) SetFailLogout(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failLogout = fail
}

// HoldRefresh blocks refresh handlers until the returned function is called
func (b *Backend) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.refreshGate = gate
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() { close(gate) })
	}
}

// ExpireAccessTokens invalidates every issued access token so the next API call
// answers 401
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accessTokens = map[string]string{}
}

// IssueAccessToken mints a valid access token for account id
func (b *Backend) IssueAccessToken(id string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueLocked(id)
}

// IssueRefreshToken mints a refresh token for account id
func (b *Backend) IssueRefreshToken(id string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.serial++
	rt := fmt.Sprintf("rt-%s-%d", id, b.serial)
	b.refreshTokens[rt] = id
	return rt
}

func (b *Backend) issueLocked(id string) string {
	b.serial++
	claims := jwt.RegisteredClaims{
		Subject:   id,
		ID:        strconv.Itoa(b.serial),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(b.tokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	b.accessTokens[signed] = id
	return signed
}

func (b *Backend) login(company bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.LoginCalls.Add(1)
		var creds struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
			return
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		acc, ok := b.accounts[creds.Email]
		if !ok || acc.Password != creds.Password || acc.Company != company {
			writeDetail(w, http.StatusUnauthorized, "이메일 또는 비밀번호가 일치하지 않습니다")
			return
		}
		if acc.Email == DeletedEmail {
			writeDetail(w, http.StatusForbidden, "탈퇴한 회원입니다")
			return
		}
		writeJSON(w, http.StatusOK, b.loginBodyLocked(acc, ""))
	}
}

func (b *Backend) oauthCallback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code        string `json:"code"`
		RedirectURI string `json:"redirect_uri"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		writeDetail(w, http.StatusBadRequest, "missing code")
		return
	}
	if body.Code == DeniedCode {
		writeDetail(w, http.StatusUnauthorized, "provider rejected the code")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.accounts["ops@studio.example"]
	writeJSON(w, http.StatusOK, b.loginBodyLocked(acc, r.PathValue("provider")))
}

func (b *Backend) loginBodyLocked(acc *Account, provider string) map[string]any {
	body := map[string]any{
		"access_token": b.issueLocked(acc.ID),
		"token_type":   "bearer",
	}
	if acc.Company {
		company := map[string]any{"id": acc.ID, "name": acc.Name, "email": acc.Email, "plan": acc.Plan}
		if provider != "" {
			company["oauth_provider"] = provider
		}
		body["company"] = company
		return body
	}
	b.serial++
	rt := fmt.Sprintf("rt-%s-%d", acc.ID, b.serial)
	b.refreshTokens[rt] = acc.ID
	body["refresh_token"] = rt
	body["user"] = map[string]any{
		"user_id":              acc.ID,
		"email":                acc.Email,
		"nickname":             acc.Nickname,
		"onboarding_completed": false,
	}
	return body
}

func (b *Backend) refresh(w http.ResponseWriter, r *http.Request) {
	b.RefreshCalls.Add(1)

	b.mu.Lock()
	gate := b.refreshGate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.refreshTokens[body.RefreshToken]
	if b.failRefresh || !ok {
		writeDetail(w, http.StatusUnauthorized, "유효하지 않은 리프레시 토큰입니다.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"access_token": b.issueLocked(id), "token_type": "bearer"})
}

func (b *Backend) logout(w http.ResponseWriter, r *http.Request) {
	b.LogoutCalls.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failLogout {
		writeDetail(w, http.StatusInternalServerError, "logout unavailable")
		return
	}
	if id, ok := b.authorizedLocked(r); ok {
		for rt, owner := range b.refreshTokens {
			if owner == id {
				delete(b.refreshTokens, rt)
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "로그아웃 되었습니다."})
}

func (b *Backend) principal(w http.ResponseWriter, r *http.Request) {
	b.FetchCalls.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.authorizedLocked(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	for _, acc := range b.accounts {
		if acc.ID != id {
			continue
		}
		if acc.Company {
			writeJSON(w, http.StatusOK, map[string]any{"id": acc.ID, "name": acc.Name, "email": acc.Email, "plan": acc.Plan})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user_id": acc.ID, "email": acc.Email, "nickname": acc.Nickname, "onboarding_completed": true})
		return
	}
	writeDetail(w, http.StatusNotFound, "not found")
}

func (b *Backend) movies(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	_, ok := b.authorizedLocked(r)
	b.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "token expired")
		return
	}
	if r.Method == http.MethodPost {
		var echo map[string]any
		if err := json.NewDecoder(r.Body).Decode(&echo); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid body")
			return
		}
		writeJSON(w, http.StatusOK, echo)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movies": []string{"Parasite", "Oldboy"}})
}

func (b *Backend) status(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(r.PathValue("code"))
	if err != nil {
		code = http.StatusBadRequest
	}
	writeDetail(w, code, http.StatusText(code))
}

func (b *Backend) authorizedLocked(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return "", false
	}
	id, ok := b.accessTokens[token]
	return id, ok
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

type backendURLs string

var _ config.BackendConfig = backendURLs("")

func (u backendURLs) GetAPIBaseURL() string            { return string(u) }
func (u backendURLs) GetAuthBaseURL() string           { return string(u) }
func (u backendURLs) GetConsoleBaseURL() string        { return string(u) }
func (u backendURLs) GetRequestTimeout() time.Duration { return 5 * time.Second }
