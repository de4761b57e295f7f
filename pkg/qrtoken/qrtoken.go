// Package qrtoken 签发与校验签到二维码中携带的令牌。
//
// 令牌是 HS256 JWT，声明中包含会话 ID (sid)、令牌 ID (jti)、签发时间 (iat)
// 与过期时间 (exp)。校验只核对签名与结构，不核对时间：过期判断属于签到流程的
// 后续步骤，由调用方基于同一次时钟读数完成。
package qrtoken

import (
	"errors"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

const (
	issuer   = "qr-attendance"
	audience = "attendance-checkin"

	// MaxPayloadLength 扫码内容长度上限，超出直接视为格式错误
	MaxPayloadLength = 2048
)

// ErrMalformed 令牌无法解析或签名不匹配
var ErrMalformed = errors.New("二维码数据格式无效")

// Payload 令牌携带的签到信息
type Payload struct {
	TokenID   string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type claims struct {
	SessionID string `json:"sid"`
	jwtv5.RegisteredClaims
}

// Signer 二维码令牌签名器
type Signer struct {
	secret []byte
	parser *jwtv5.Parser
}

// NewSigner 创建签名器；secret 应与登录 Token 的密钥分离
func NewSigner(secret string) *Signer {
	return &Signer{
		secret: []byte(secret),
		parser: jwtv5.NewParser(
			jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
			jwtv5.WithoutClaimsValidation(),
		),
	}
}

// Sign 生成二维码中展示的令牌字符串
func (s *Signer) Sign(p Payload) (string, error) {
	c := claims{
		SessionID: p.SessionID,
		RegisteredClaims: jwtv5.RegisteredClaims{
			ID:        p.TokenID,
			Issuer:    issuer,
			Audience:  jwtv5.ClaimStrings{audience},
			IssuedAt:  jwtv5.NewNumericDate(p.IssuedAt),
			ExpiresAt: jwtv5.NewNumericDate(p.ExpiresAt),
		},
	}
	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, c).SignedString(s.secret)
}

// Parse 校验签名并还原令牌内容，不做任何时间相关校验
func (s *Signer) Parse(raw string) (*Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > MaxPayloadLength {
		return nil, ErrMalformed
	}

	var c claims
	token, err := s.parser.ParseWithClaims(raw, &c, func(*jwtv5.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrMalformed
	}

	if c.Issuer != issuer || len(c.Audience) != 1 || c.Audience[0] != audience {
		return nil, ErrMalformed
	}
	if c.ID == "" || c.SessionID == "" || c.IssuedAt == nil || c.ExpiresAt == nil {
		return nil, ErrMalformed
	}

	return &Payload{
		TokenID:   c.ID,
		SessionID: c.SessionID,
		IssuedAt:  c.IssuedAt.Time,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
