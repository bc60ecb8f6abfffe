package models

import (
	"slices"
	"strings"
	"time"
)

// RewardPlatform is the payout channel a candidate picks
type RewardPlatform string

const (
	PlatformPix         RewardPlatform = "pix"
	PlatformPayPal      RewardPlatform = "paypal"
	PlatformPicPay      RewardPlatform = "picpay"
	PlatformMercadoPago RewardPlatform = "mercadopago"
)

// RewardPlatforms lists every accepted platform
var RewardPlatforms = []RewardPlatform{PlatformPix, PlatformPayPal, PlatformPicPay, PlatformMercadoPago}

// Valid reports whether p is one of the known platforms
func (p RewardPlatform) Valid() bool {
	return slices.Contains(RewardPlatforms, p)
}

// RewardPlatformNames joins the accepted platforms for messages
func RewardPlatformNames() string {
	names := make([]string, len(RewardPlatforms))
	for i, p := range RewardPlatforms {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

// CandidateEntry is one participant in the current cycle's roster
// Maps to: roster_entry table
type CandidateEntry struct {
	ID              int64          `db:"id" json:"id"`
	DisplayName     string         `db:"display_name" json:"display_name"`
	ChosenAffiliate string         `db:"chosen_affiliate" json:"chosen_affiliate"`
	RewardPlatform  RewardPlatform `db:"reward_platform" json:"reward_platform"`
	AdmittedAt      time.Time      `db:"admitted_at" json:"admitted_at"`
}

// EntryInput is a submission before sanitization and admission
type EntryInput struct {
	DisplayName     string         `json:"display_name"`
	ChosenAffiliate string         `json:"chosen_affiliate"`
	RewardPlatform  RewardPlatform `json:"reward_platform"`
}
