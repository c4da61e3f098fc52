package model

import (
	"testing"
	"time"
)

func TestTokenStateMachine(t *testing.T) {
	// ISSUED 是唯一的非终态
	for _, target := range []string{TokenStatusUsed, TokenStatusExpired, TokenStatusRevoked} {
		if !TokenCanTransitionTo(TokenStatusIssued, target) {
			t.Errorf("ISSUED -> %s 应当合法", target)
		}
	}

	// 终态之间不允许任何转移
	terminals := []string{TokenStatusUsed, TokenStatusExpired, TokenStatusRevoked}
	for _, from := range terminals {
		for _, to := range []string{TokenStatusIssued, TokenStatusUsed, TokenStatusExpired, TokenStatusRevoked} {
			if TokenCanTransitionTo(from, to) {
				t.Errorf("%s -> %s 不应合法", from, to)
			}
		}
	}

	if TokenCanTransitionTo("UNKNOWN", TokenStatusUsed) {
		t.Errorf("未知状态不应有任何出边")
	}
}

func TestTokenIsExpiredAt(t *testing.T) {
	token := &RedemptionToken{ExpiresAt: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}

	if token.IsExpiredAt(token.ExpiresAt.Add(-time.Second)) {
		t.Errorf("有效期内不应判为过期")
	}
	if token.IsExpiredAt(token.ExpiresAt) {
		t.Errorf("恰好到期时刻不应判为过期")
	}
	if !token.IsExpiredAt(token.ExpiresAt.Add(time.Second)) {
		t.Errorf("过了有效期应判为过期")
	}
}
