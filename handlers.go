package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// tokenPair is the response body for every token-issuing route.
type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// issueTokens signs a fresh access/refresh pair for a profile and persists
// the refresh credential.
func (a *App) issueTokens(p *Profile, accessTTL time.Duration) (*tokenPair, error) {
	claims := IdentityClaims{ID: p.ID, Name: p.Name, Email: p.Email, InternalID: p.InternalID}
	access, err := a.Tokens.Issue(KeyAccess, claims, accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := a.Tokens.Issue(KeyRefresh, claims, 0)
	if err != nil {
		return nil, err
	}
	if err := a.Store.CreateRefreshCredential(refresh, p.ID); err != nil {
		return nil, err
	}
	return &tokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// HandleCreateProfile creates a profile and issues its first token pair.
func (a *App) HandleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ID          string        `json:"id"`
		Name        string        `json:"name"`
		Email       string        `json:"email"`
		Image       *ProfileImage `json:"image"`
		YearOfStudy int           `json:"yearOfStudy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "Invalid request body")
		return
	}
	if in.ID == "" || in.Name == "" || in.Email == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "id, name and email are required")
		return
	}

	p := &Profile{
		InternalID:  uuid.NewString(),
		ID:          in.ID,
		Name:        in.Name,
		Email:       in.Email,
		Firehearts:  defaultFirehearts,
		LastEdited:  time.Now(),
		YearOfStudy: in.YearOfStudy,
	}
	if in.Image != nil {
		p.Image = *in.Image
	}
	if err := a.Store.CreateProfile(p); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	pair, err := a.issueTokens(p, accessTTLOnCreate)
	if err != nil {
		log.Printf("create profile: issue tokens: %v", err)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to issue tokens")
		return
	}
	writeJSON(w, http.StatusCreated, pair)
}

// HandleLogin issues a token pair for an existing profile.
func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "Invalid request body")
		return
	}
	p, err := a.Store.GetProfile(in.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, err.Error())
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "User not found")
		return
	}

	pair, err := a.issueTokens(p, accessTTLOnLogin)
	if err != nil {
		log.Printf("login: issue tokens: %v", err)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to issue tokens")
		return
	}
	writeJSON(w, http.StatusCreated, pair)
}

// HandleToken exchanges a persisted refresh token for a new access token.
// The refresh token is returned unchanged.
func (a *App) HandleToken(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Token == "" {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized")
		return
	}
	access, err := a.Tokens.Rotate(a.Store, in.Token)
	if err != nil {
		writeError(w, http.StatusForbidden, CodeTokenInvalid, "Invalid Token")
		return
	}
	writeJSON(w, http.StatusCreated, tokenPair{AccessToken: access, RefreshToken: in.Token})
}

// HandleLogout revokes every refresh credential of the caller.
func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if err := a.Store.DeleteRefreshCredentialsForUser(claims.ID); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// HandleGetUser returns a profile plus its 1-based rank by descending score.
func (a *App) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := a.Store.GetProfile(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, err.Error())
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "Cannot find the user")
		return
	}
	rank, err := a.Store.RankOf(p.Firehearts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, RankedProfile{Profile: *p, Rank: rank})
}

// HandleRandom samples random profiles; the count comes from the request
// body and defaults to 5.
func (a *App) HandleRandom(w http.ResponseWriter, r *http.Request) {
	count := 5
	var in struct {
		Count *int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err == nil && in.Count != nil && *in.Count > 0 {
		count = *in.Count
	}
	profiles, err := a.Store.SampleProfiles(count)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

// HandleLeaderboard lists the top profiles sorted by firehearts descending,
// ties broken by oldest lastEdited first.
func (a *App) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	count := 10
	if q := r.URL.Query().Get("count"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			count = n
		}
	}
	profiles, err := a.Store.TopProfiles(count)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, err.Error())
		return
	}
	if profiles == nil {
		profiles = []*Profile{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

// HandleUpdate applies a partial update to the caller's profile. Absent
// fields are left unchanged. When the image changes, the old stored file is
// deleted best-effort after the record is persisted.
func (a *App) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var patch profilePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "Invalid request body")
		return
	}

	p, err := a.Store.GetProfile(claims.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, err.Error())
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "Cannot find the user")
		return
	}

	oldImage := p.Image
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Image != nil {
		p.Image = *patch.Image
	}
	if patch.YearOfStudy != nil {
		p.YearOfStudy = *patch.YearOfStudy
	}
	p.LastEdited = time.Now()

	if err := a.Store.SaveProfile(p); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	if patch.Image != nil && oldImage.URL != "" {
		a.Images.DiscardByURL(oldImage.URL)
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandleIncrement applies a bounded firehearts delta to the named profile.
// The effective delta is clamped to [-20, +20] regardless of the request.
func (a *App) HandleIncrement(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ID        string `json:"id"`
		Increment *int   `json:"increment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "Invalid request body")
		return
	}

	p, err := a.Store.GetProfile(in.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, err.Error())
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "Cannot find the user")
		return
	}

	if in.Increment != nil {
		p.Firehearts += clamp(*in.Increment, -incrementLimit, incrementLimit)
	}
	p.LastEdited = time.Now()

	if err := a.Store.SaveProfile(p); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
