package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"realtime-notes/core"
	"realtime-notes/stores"

	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 30 * 24 * time.Hour
	refreshCookie   = "refreshToken"

	bcryptCost = 12
)

var (
	jwtSecret         []byte
	githubOauthConfig *oauth2.Config
)

// AppClaims represents the custom claims for the JWT.
type AppClaims struct {
	jwt.RegisteredClaims
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

func InitAuth() {
	jwtSecret = []byte(os.Getenv("JWT_SECRET"))
	if len(jwtSecret) == 0 {
		logrus.Warn("JWT_SECRET is not set. Authentication will not work.")
	}

	if os.Getenv("GITHUB_CLIENT_ID") != "" && os.Getenv("GITHUB_CLIENT_SECRET") != "" {
		logrus.Info("Initializing GitHub authentication provider.")
		githubOauthConfig = &oauth2.Config{
			ClientID:     os.Getenv("GITHUB_CLIENT_ID"),
			ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("GITHUB_REDIRECT_URL"),
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}
	}
}

// SetSecret overrides the signing secret. Used by tests.
func SetSecret(secret []byte) {
	jwtSecret = secret
}

func createToken(user *core.User, ttl time.Duration) (string, error) {
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Name:  user.Name,
		Email: user.Email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ParseJWT validates a token and returns its claims. Malformed, forged and
// expired tokens all come back as plain errors; callers reject them alike.
func ParseJWT(tokenString string) (*AppClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*AppClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// VerifySubject is the identity assertion check used by the collaboration
// channel: token in, stable subject out.
func VerifySubject(tokenString string) (string, error) {
	claims, err := ParseJWT(tokenString)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return claims.Subject, nil
}

type credentialsRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	AccessToken string     `json:"accessToken"`
	User        *core.User `json:"user"`
}

func issueSession(w http.ResponseWriter, r *http.Request, store stores.Store, user *core.User) {
	accessToken, err := createToken(user, accessTokenTTL)
	if err != nil {
		logrus.WithError(err).Error("Failed to sign access token")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "failed to issue token"})
		return
	}

	refreshToken, err := createToken(user, refreshTokenTTL)
	if err != nil {
		logrus.WithError(err).Error("Failed to sign refresh token")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "failed to issue token"})
		return
	}

	expiresAt := time.Now().Add(refreshTokenTTL)
	err = store.SaveRefreshToken(r.Context(), &core.RefreshToken{
		Token:     refreshToken,
		Subject:   user.Subject,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to store refresh token")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "failed to issue token"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    refreshToken,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	render.JSON(w, r, sessionResponse{AccessToken: accessToken, User: user})
}

func HandleRegister(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "email & password required"})
			return
		}

		if _, err := store.FindUserByEmail(r.Context(), req.Email); err == nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "email already in use"})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
		if err != nil {
			logrus.WithError(err).Error("Failed to hash password")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "registration failed"})
			return
		}

		user := &core.User{
			Name:         req.Name,
			Email:        req.Email,
			PasswordHash: string(hash),
		}
		if _, err := store.CreateUser(r.Context(), user); err != nil {
			logrus.WithError(err).Error("Failed to create user")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "registration failed"})
			return
		}

		logrus.WithFields(logrus.Fields{"user_id": user.ID, "email": user.Email}).Info("User registered")
		issueSession(w, r, store, user)
	}
}

func HandleLogin(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "email & password required"})
			return
		}

		user, err := store.FindUserByEmail(r.Context(), req.Email)
		if err != nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "invalid credentials"})
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "invalid credentials"})
			return
		}

		issueSession(w, r, store, user)
	}
}

func HandleRefresh(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(refreshCookie)
		if err != nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "no refresh token"})
			return
		}

		claims, err := ParseJWT(cookie.Value)
		if err != nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "invalid refresh token"})
			return
		}

		stored, err := store.FindRefreshToken(r.Context(), cookie.Value)
		if err != nil || stored.Revoked || time.Now().After(stored.ExpiresAt) {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "refresh token not found"})
			return
		}

		accessToken, err := createToken(&core.User{
			Subject: claims.Subject,
			Name:    claims.Name,
			Email:   claims.Email,
		}, accessTokenTTL)
		if err != nil {
			logrus.WithError(err).Error("Failed to sign access token")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "failed to issue token"})
			return
		}

		render.JSON(w, r, map[string]string{"accessToken": accessToken})
	}
}

func HandleLogout(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(refreshCookie); err == nil {
			if err := store.RevokeRefreshToken(r.Context(), cookie.Value); err != nil && !errors.Is(err, core.ErrNotFound) {
				logrus.WithError(err).Warn("Failed to revoke refresh token")
			}
		}

		http.SetCookie(w, &http.Cookie{
			Name:     refreshCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
		render.JSON(w, r, map[string]bool{"ok": true})
	}
}

func generateStateOauthCookie(w http.ResponseWriter) string {
	b := make([]byte, 16)
	rand.Read(b)
	state := base64.URLEncoding.EncodeToString(b)
	cookie := &http.Cookie{
		Name:     "oauthstate",
		Value:    state,
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
	}
	http.SetCookie(w, cookie)
	return state
}

func HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if githubOauthConfig == nil {
		http.Error(w, "GitHub OAuth is not configured", http.StatusInternalServerError)
		return
	}
	state := generateStateOauthCookie(w)
	url := githubOauthConfig.AuthCodeURL(state)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

func HandleGitHubCallback(store stores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if githubOauthConfig == nil {
			http.Error(w, "GitHub OAuth is not configured", http.StatusInternalServerError)
			return
		}

		token, err := githubOauthConfig.Exchange(context.Background(), r.FormValue("code"))
		if err != nil {
			logrus.Errorf("failed to exchange token: %s", err.Error())
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		client := githubOauthConfig.Client(context.Background(), token)
		resp, err := client.Get("https://api.github.com/user")
		if err != nil {
			logrus.Errorf("failed to get user from github: %s", err.Error())
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			logrus.Errorf("failed to read github response body: %s", err.Error())
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		var githubUser struct {
			ID    int64  `json:"id"`
			Login string `json:"login"`
			Name  string `json:"name"`
			Email string `json:"email"`
		}
		if err := json.Unmarshal(body, &githubUser); err != nil {
			logrus.Errorf("failed to unmarshal github user: %s", err.Error())
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		subject := fmt.Sprintf("github:%d", githubUser.ID)
		user, err := store.FindUserBySubject(r.Context(), subject)
		if errors.Is(err, core.ErrNotFound) {
			user = &core.User{
				Subject: subject,
				Name:    githubUser.Name,
				Email:   githubUser.Email,
			}
			if user.Name == "" {
				user.Name = githubUser.Login
			}
			if _, err := store.CreateUser(r.Context(), user); err != nil {
				logrus.Errorf("failed to create github user: %s", err.Error())
				http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
				return
			}
		} else if err != nil {
			logrus.Errorf("failed to look up github user: %s", err.Error())
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		jwtToken, err := createToken(user, accessTokenTTL)
		if err != nil {
			logrus.Errorf("failed to create JWT: %s", err.Error())
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		// Redirect to frontend with token
		http.Redirect(w, r, fmt.Sprintf("/?token=%s", jwtToken), http.StatusTemporaryRedirect)
	}
}
