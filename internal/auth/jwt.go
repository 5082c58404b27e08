// Package auth はアクセストークン（HS256 JWT）の発行と検証。
// ユーザー管理は外部なので、ここでは sub と role だけを扱う。
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

var ErrInvalidToken = errors.New("invalid token")

// 認証済みの呼び出し元
type Identity struct {
	UserID int64
	Role   Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret, issuer string, ttl time.Duration) *Manager {
	return &Manager{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// jwt発行
func (m *Manager) Issue(userID int64, role Role) (string, time.Time, error) {
	if userID <= 0 {
		return "", time.Time{}, fmt.Errorf("invalid user id %d", userID)
	}
	if role != RoleUser && role != RoleAdmin {
		return "", time.Time{}, fmt.Errorf("invalid role %q", role)
	}

	now := m.now()
	exp := now.Add(m.ttl)
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(userID, 10),
		"role": string(role),
		"iss":  m.issuer,
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// 署名・期限・発行者を確認して呼び出し元を返す
func (m *Manager) Verify(raw string) (Identity, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	//claimsを取り出す
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	if m.issuer != "" && !claims.VerifyIssuer(m.issuer, true) {
		return Identity{}, ErrInvalidToken
	}

	userID, err := parseUserID(claims["sub"])
	if err != nil || userID <= 0 {
		return Identity{}, ErrInvalidToken
	}

	//roleを取り出す（USER/ADMIN）
	rawRole, _ := claims["role"].(string)
	role := Role(strings.ToUpper(strings.TrimSpace(rawRole)))
	if role != RoleUser && role != RoleAdmin {
		return Identity{}, ErrInvalidToken
	}

	return Identity{UserID: userID, Role: role}, nil
}

// user_idをint64に変換する
func parseUserID(v interface{}) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, errors.New("invalid sub")
	}
}
