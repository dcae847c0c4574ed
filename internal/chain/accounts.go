package chain

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// MicroPerSTX is the number of µSTX in one STX.
const MicroPerSTX = 1_000_000

// DevnetBalance is the genesis balance of every devnet account, in µSTX.
const DevnetBalance uint64 = 100_000_000 * MicroPerSTX

// Account is a named devnet identity.
type Account struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// DevnetAccounts returns the standard devnet deployer and wallets.
func DevnetAccounts() []Account {
	return []Account{
		{"deployer", "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"},
		{"wallet_1", "ST1SJ3DTE5DN7X54YDH5D64R3BCB6A2AG2ZQ8YPD5"},
		{"wallet_2", "ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG"},
		{"wallet_3", "ST2JHG361ZXG51QTKY2NQCVBPPRRE2KZB1HR05NNC"},
		{"wallet_4", "ST2NEB84ASENDXKYGJPQW86YXQCEFEX2ZQPG87ND"},
		{"wallet_5", "ST2REHHS5J3CERCRBEPMGH7921Q6PYKAADT7JP2VB"},
		{"wallet_6", "ST3AM1A56AK2C1XAFJ4115ZSV26EB49BVQ10MGCS0"},
		{"wallet_7", "ST3PF13W7Z0RRM42A8VZRVFQ75SV1K26RXEP8YGKJ"},
		{"wallet_8", "ST3NBRSFKX28FQ2ZJ1MAKX58HKHSDGNV5N7R21XCP"},
	}
}

// AccountMap indexes accounts by name.
func AccountMap(accounts []Account) map[string]string {
	m := make(map[string]string, len(accounts))
	for _, a := range accounts {
		m[a.Name] = a.Address
	}
	return m
}

// FormatSTX renders a µSTX amount as STX with six decimals.
func FormatSTX(micro uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(micro), -6).StringFixed(6)
}

// ParseSTX parses an STX amount such as "1.5" into µSTX. Amounts with more
// than six decimals or below zero are rejected.
func ParseSTX(s string) (uint64, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.IsNegative() {
		return 0, false
	}
	micro := d.Shift(6)
	if !micro.Equal(micro.Truncate(0)) {
		return 0, false
	}
	if !micro.BigInt().IsUint64() {
		return 0, false
	}
	return micro.BigInt().Uint64(), true
}

// isStandardPrincipal reports whether s looks like an ST/SP address.
func isStandardPrincipal(s string) bool {
	if len(s) < 3 || s[0] != 'S' || strings.Contains(s, ".") {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
