package server

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"codeberg.org/kvo/std/errors"
	"golang.org/x/crypto/bcrypt"

	"main/site"
)

// Session tokens expire after 24 hours, matching the lifetime the panel
// advertises to users.
const tokenLifetime = 24 * time.Hour

func hashSecret(secret string) (string, errors.Error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.New("cannot hash secret", errors.New(err.Error(), nil))
	}
	return string(hash), nil
}

func verifySecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// encrypt seals a stored upstream credential with the server key.
// Returns base64(nonce|ciphertext).
func encrypt(key []byte, plaintext string) (string, errors.Error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.New("cannot create cipher", errors.New(err.Error(), nil))
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.New("cannot create GCM", errors.New(err.Error(), nil))
	}
	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.New("cannot generate nonce", errors.New(err.Error(), nil))
	}
	sealed := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// decrypt reverses encrypt.
func decrypt(key []byte, encoded string) (string, errors.Error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.New("cannot decode ciphertext", errors.New(err.Error(), nil))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.New("cannot create cipher", errors.New(err.Error(), nil))
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.New("cannot create GCM", errors.New(err.Error(), nil))
	}
	if len(data) < aesGCM.NonceSize() {
		return "", errors.New("ciphertext too short", nil)
	}
	nonce, sealed := data[:aesGCM.NonceSize()], data[aesGCM.NonceSize():]
	plaintext, err := aesGCM.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", errors.New("cannot decrypt ciphertext", errors.New(err.Error(), nil))
	}
	return string(plaintext), nil
}

// register creates a new user account keyed by email.
func register(email, password string) errors.Error {
	ctx := context.Background()

	exists, err := db.Exists(ctx, "user:"+email).Result()
	if err != nil {
		return errors.New("cannot check for existing user", errors.New(err.Error(), nil))
	}
	if exists == 1 {
		return errors.New("a user with this email already exists", nil)
	}

	hash, herr := hashSecret(password)
	if herr != nil {
		return herr
	}

	err = db.HSet(ctx, "user:"+email, map[string]any{
		"email":    email,
		"password": hash,
	}).Err()
	if err != nil {
		return errors.New("cannot store user", errors.New(err.Error(), nil))
	}
	err = db.SAdd(ctx, "users", email).Err()
	if err != nil {
		return errors.New("cannot index user", errors.New(err.Error(), nil))
	}
	return nil
}

// issueToken creates a session token for the given user and stores it
// with a bounded lifetime.
func issueToken(email string) (string, errors.Error) {
	buf := make([]byte, 32)
	_, err := rand.Read(buf)
	if err != nil {
		return "", errors.New("cannot generate token", errors.New(err.Error(), nil))
	}
	token := base64.URLEncoding.EncodeToString(buf)

	ctx := context.Background()
	err = db.Set(ctx, "token:"+token, email, tokenLifetime).Err()
	if err != nil {
		return "", errors.New("cannot store token", errors.New(err.Error(), nil))
	}
	return token, nil
}

// login verifies the user's password and issues a session token.
func login(email, password string) (string, errors.Error) {
	ctx := context.Background()

	hash, err := db.HGet(ctx, "user:"+email, "password").Result()
	if err != nil || !verifySecret(hash, password) {
		return "", site.ErrAuthFailed
	}
	return issueToken(email)
}

// verifyIdentity resolves a session token to the owning user's email.
func verifyIdentity(token string) (string, errors.Error) {
	ctx := context.Background()

	email, err := db.Get(ctx, "token:"+token).Result()
	if err != nil {
		return "", site.ErrInvalidAuth
	}
	return email, nil
}

// Attempt to get pre-existing user credentials from the request's
// cookies.
func getCreds(cookies string) (string, errors.Error) {
	var token string

	start := strings.Index(cookies, "token=")
	if start == -1 {
		return "", site.ErrInvalidAuth
	}

	start += 6
	end := strings.Index(cookies[start:], ";")

	if end == -1 {
		token = cookies[start:]
	} else {
		token = cookies[start : start+end]
	}

	return verifyIdentity(token)
}

// logout revokes the session token carried by the request's cookies.
func logout(cookies string) errors.Error {
	start := strings.Index(cookies, "token=")
	if start == -1 {
		return site.ErrInvalidAuth
	}
	token := cookies[start+6:]
	if end := strings.Index(token, ";"); end != -1 {
		token = token[:end]
	}

	ctx := context.Background()
	err := db.Del(ctx, "token:"+token).Err()
	if err != nil {
		return errors.New("cannot revoke token", errors.New(err.Error(), nil))
	}
	return nil
}

// changePassword replaces the user's password after verifying the old
// one.
func changePassword(email, oldPassword, newPassword string) errors.Error {
	ctx := context.Background()

	hash, err := db.HGet(ctx, "user:"+email, "password").Result()
	if err != nil || !verifySecret(hash, oldPassword) {
		return site.ErrAuthFailed
	}

	newHash, herr := hashSecret(newPassword)
	if herr != nil {
		return herr
	}
	err = db.HSet(ctx, "user:"+email, "password", newHash).Err()
	if err != nil {
		return errors.New("cannot store new password", errors.New(err.Error(), nil))
	}
	return nil
}
