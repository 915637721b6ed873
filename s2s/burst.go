package s2s

import (
	"fmt"
	"strings"
)

// BurstUser is the decoded form of a TS6-like EUID line exchanged during
// burst or on remote user introduction.
type BurstUser struct {
	Nick      string
	Hopcount  int
	Timestamp int64
	Modes     string
	User      string
	Host      string
	IP        string
	UID       string
	Account   string
	RealHost  string
	RealName  string
}

// EncodeEUID renders a BurstUser as an EUID protocol line originating from
// sourceSID.
func EncodeEUID(sourceSID string, u BurstUser) string {
	account := u.Account
	if account == "" {
		account = "*"
	}
	return fmt.Sprintf(":%s EUID %s %d %d +%s %s %s %s %s %s %s :%s",
		sourceSID, u.Nick, u.Hopcount, u.Timestamp, u.Modes, u.User, u.Host,
		u.IP, u.UID, u.RealHost, account, u.RealName)
}

// DecodeEUID parses the parameter list of an EUID line (params after the
// command token, i.e. everything but the ":<sid> EUID" prefix).
func DecodeEUID(params []string, trailing string) (BurstUser, error) {
	if len(params) < 10 {
		return BurstUser{}, fmt.Errorf("s2s: EUID needs 10 params, got %d", len(params))
	}

	var hop, ts int
	fmt.Sscanf(params[1], "%d", &hop)
	fmt.Sscanf(params[2], "%d", &ts)

	account := params[9]
	if account == "*" {
		account = ""
	}

	return BurstUser{
		Nick:      params[0],
		Hopcount:  hop,
		Timestamp: int64(ts),
		Modes:     strings.TrimPrefix(params[3], "+"),
		User:      params[4],
		Host:      params[5],
		IP:        params[6],
		UID:       params[7],
		RealHost:  params[8],
		Account:   account,
		RealName:  trailing,
	}, nil
}

// EncodeSJOIN renders a burst SJOIN line for a channel, its timestamp,
// modes, and its member list formatted with status prefixes (@, +, etc.)
// per member.
func EncodeSJOIN(sourceSID, channel string, timestamp int64, modes string, members []string) string {
	return fmt.Sprintf(":%s SJOIN %d %s +%s :%s",
		sourceSID, timestamp, channel, modes, strings.Join(members, " "))
}

// EncodeTMODE renders a timestamped channel MODE change for S2S relay.
func EncodeTMODE(sourceSID, channel string, timestamp int64, modeChange string, params []string) string {
	line := fmt.Sprintf(":%s TMODE %d %s %s", sourceSID, timestamp, channel, modeChange)
	if len(params) > 0 {
		line += " " + strings.Join(params, " ")
	}
	return line
}

// EncodeSQUIT renders an SQUIT line severing a link, cascading to every
// node behind it.
func EncodeSQUIT(sourceSID, targetSID, reason string) string {
	return fmt.Sprintf(":%s SQUIT %s :%s", sourceSID, targetSID, reason)
}

// EncodeEncap renders an ENCAP line. target is the destination mask ("*"
// for network-wide) and subcommand/params carry opaque payload forwarded
// unmodified by servers that do not recognize it, per the open ENCAP *
// forwarding policy.
func EncodeEncap(sourceSID, target, subcommand string, params []string) string {
	line := fmt.Sprintf(":%s ENCAP %s %s", sourceSID, target, subcommand)
	if len(params) > 0 {
		line += " " + strings.Join(params, " ")
	}
	return line
}

// KnownEncapSubcommands are the ENCAP payloads ShouldHandleLocally reports
// as understood locally. The link reader in the core package relays every
// ENCAP line to the other peers unmodified without consulting this table.
var KnownEncapSubcommands = map[string]bool{
	"KLINE":  true,
	"UNKLINE": true,
	"NICKDELAY": true,
}

// ShouldHandleLocally reports whether this server understands subcommand
// well enough to act on it, versus just relaying it onward.
func ShouldHandleLocally(subcommand string) bool {
	return KnownEncapSubcommands[strings.ToUpper(subcommand)]
}
