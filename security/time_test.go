package security

import (
	"testing"
	"time"
)

func TestIsTokenExpired(t *testing.T) {
	if IsTokenExpired(time.Now().Add(time.Hour)) {
		t.Error("future expiry reported as expired")
	}
	if IsTokenExpired(time.Now().Add(-time.Hour)) == false {
		t.Error("past expiry not reported as expired")
	}
	if IsTokenExpired(time.Time{}) {
		t.Error("zero expiry should mean no expiration")
	}

	// Within the grace period the token is still honored.
	if IsTokenExpired(time.Now().Add(-time.Second)) {
		t.Error("expiry within grace period reported as expired")
	}
}

func TestIsTokenExpiredWithGracePeriod(t *testing.T) {
	expiresAt := time.Now().Add(-10 * time.Second)

	if !IsTokenExpiredWithGracePeriod(expiresAt, 5*time.Second) {
		t.Error("token past grace period not reported as expired")
	}
	if IsTokenExpiredWithGracePeriod(expiresAt, 30*time.Second) {
		t.Error("token within grace period reported as expired")
	}
}

func TestIsTokenExpiringSoon(t *testing.T) {
	if !IsTokenExpiringSoon(time.Now().Add(time.Minute), 5*time.Minute) {
		t.Error("token expiring within threshold not reported")
	}
	if IsTokenExpiringSoon(time.Now().Add(time.Hour), 5*time.Minute) {
		t.Error("distant expiry reported as expiring soon")
	}
	if IsTokenExpiringSoon(time.Time{}, 5*time.Minute) {
		t.Error("zero expiry should never be expiring soon")
	}
}
