package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"fireplus/internal/service"
)

func TestAuthHandlers_SignUpAndSignIn(t *testing.T) {
	auth := &mockAuth{signUpID: 42, genTokenToken: "tok123", parseID: 1}
	s := &service.Service{Authorization: auth}
	r := newTestRouter(s)

	// sign-up success
	body := bytes.NewBufferString(`{"username":"u","password":"p"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/sign-up", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("sign-up status=%d, body=%s", w.Code, w.Body.String())
	}
	var m map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &m)
	if int(m["id"].(float64)) != 42 {
		t.Fatalf("expected id=42, got %v", m["id"])
	}

	// sign-in success
	body = bytes.NewBufferString(`{"username":"u","password":"p"}`)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/auth/sign-in", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("sign-in status=%d, body=%s", w.Code, w.Body.String())
	}
	_ = json.Unmarshal(w.Body.Bytes(), &m)
	if m["token"] != "tok123" {
		t.Fatalf("expected token tok123, got %v", m["token"])
	}

	// sign-in invalid body → 400
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/auth/sign-in", bytes.NewBufferString(`{"username":1}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", w.Code)
	}
}

func TestAuthHandlers_SignUpExistingUser(t *testing.T) {
	auth := &mockAuth{signUpErr: service.ErrUserExists}
	r := newTestRouter(&service.Service{Authorization: auth})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/sign-up", bytes.NewBufferString(`{"username":"u","password":"p"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for existing user, got %d", w.Code)
	}
	if auth.lastSignUpUsername != "u" {
		t.Fatalf("username not passed: %q", auth.lastSignUpUsername)
	}
}

func TestAuthHandlers_SignInRejected(t *testing.T) {
	auth := &mockAuth{genTokenErr: service.ErrInvalidPassword}
	r := newTestRouter(&service.Service{Authorization: auth})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/sign-in", bytes.NewBufferString(`{"username":"admin","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	var m map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &m)
	if m["error"] != "invalid credentials" {
		t.Fatalf("error = %q; cause must not leak", m["error"])
	}
	if auth.lastGenUsername != "admin" {
		t.Fatalf("username not passed: %q", auth.lastGenUsername)
	}
}

func TestAuthHandlers_SignUpErrorCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"duplicate from store", fmt.Errorf("insert: %w", service.ErrUserExists), http.StatusConflict},
		{"blank username", service.ErrEmptyUsername, http.StatusBadRequest},
		{"blank password", fmt.Errorf("%w: password is empty", service.ErrInvalidPassword), http.StatusBadRequest},
		{"store failure", errors.New("create user: database is locked"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&service.Service{Authorization: &mockAuth{signUpErr: tt.err}})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/auth/sign-up", bytes.NewBufferString(`{"username":"u","password":"p"}`))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body=%s", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}
