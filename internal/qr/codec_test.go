package qr

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec("test-secret")

	qrData, err := codec.Encode("token-abc", "MILEAGE", time.Now().Add(10*time.Minute))
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}

	claims, err := codec.Decode(qrData)
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if claims.TokenID != "token-abc" || claims.TokenType != "MILEAGE" {
		t.Fatalf("载荷内容不对: %+v", claims)
	}
}

func TestCodecRejectsForgedPayload(t *testing.T) {
	codec := NewCodec("test-secret")

	// 明文拼接的假载荷
	if _, err := codec.Decode("coupon_123_1700000000"); !errors.Is(err, ErrPayloadInvalid) {
		t.Fatalf("明文假载荷应验签失败，实际 %v", err)
	}

	// 别的密钥签出来的载荷
	other := NewCodec("other-secret")
	forged, err := other.Encode("token-abc", "MILEAGE", time.Now().Add(10*time.Minute))
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}
	if _, err := codec.Decode(forged); !errors.Is(err, ErrPayloadInvalid) {
		t.Fatalf("错误密钥签名应验签失败，实际 %v", err)
	}

	// 篡改签名部分
	qrData, _ := codec.Encode("token-abc", "MILEAGE", time.Now().Add(10*time.Minute))
	parts := strings.Split(qrData, ".")
	tampered := parts[0] + "." + parts[1] + ".AAAA"
	if _, err := codec.Decode(tampered); !errors.Is(err, ErrPayloadInvalid) {
		t.Fatalf("篡改签名应验签失败，实际 %v", err)
	}
}

// 签名合法但已过期：载荷仍要解出令牌ID，调用方才能报"已过期"而不是"不存在"
func TestCodecExpiredPayloadKeepsTokenID(t *testing.T) {
	codec := NewCodec("test-secret")

	qrData, err := codec.Encode("token-abc", "MILEAGE", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}

	claims, err := codec.Decode(qrData)
	if !errors.Is(err, ErrPayloadExpired) {
		t.Fatalf("应报载荷过期，实际 %v", err)
	}
	if claims == nil || claims.TokenID != "token-abc" {
		t.Fatalf("过期载荷仍应解出令牌ID，实际 %+v", claims)
	}
}

func TestRenderPNGProducesDataURI(t *testing.T) {
	image, err := RenderPNG("anything")
	if err != nil {
		t.Fatalf("渲染失败: %v", err)
	}
	if !strings.HasPrefix(image, "data:image/png;base64,") {
		t.Fatalf("应返回 data URI")
	}
	if len(image) <= len("data:image/png;base64,") {
		t.Fatalf("图片内容为空")
	}
}
