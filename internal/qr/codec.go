package qr

import (
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	qrcode "github.com/skip2/go-qrcode"
)

// ============================================================================
// 二维码载荷编解码
// ============================================================================
//
// 【关键点】qr_data 是持有者凭证（bearer credential），不能用可猜测的明文
// 拼接（比如 coupon_{id}_{timestamp}）。这里用 HMAC-SHA256 签名的 JWT 承载
// {令牌ID, 令牌类型, 过期时间}，商家端提交的载荷先验签再查库：
// 伪造/猜测的载荷在碰到数据库之前就被拒绝。
//
// ============================================================================

var (
	ErrPayloadInvalid = errors.New("二维码载荷不合法")
	ErrPayloadExpired = errors.New("二维码载荷已过期")
)

// Claims 二维码载荷内容
type Claims struct {
	TokenID   string `json:"tid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Codec 二维码载荷编解码器
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Encode 把令牌签成 qr_data 字符串
func (c *Codec) Encode(tokenID, tokenType string, expiresAt time.Time) (string, error) {
	claims := &Claims{
		TokenID:   tokenID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Decode 验签并解出载荷
// 签名不对返回 ErrPayloadInvalid；签名对但已过期返回 ErrPayloadExpired
// （过期的载荷仍然指向一个真实令牌，调用方据此返回"已过期"而不是"不存在"）
func (c *Codec) Decode(qrData string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(qrData, claims, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return claims, ErrPayloadExpired
		}
		return nil, ErrPayloadInvalid
	}

	if claims.TokenID == "" {
		return nil, ErrPayloadInvalid
	}
	return claims, nil
}

// RenderPNG 把 qr_data 渲染成 PNG 并返回 base64 data URI，客户端直接展示
func RenderPNG(qrData string) (string, error) {
	png, err := qrcode.Encode(qrData, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
