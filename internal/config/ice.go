package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
)

const (
	envICEServersJSON = "BBCAT_ICE_SERVERS_JSON"
	envStunURLs       = "BBCAT_STUN_URLS"
	envTurnURLs       = "BBCAT_TURN_URLS"
	envTurnUsername   = "BBCAT_TURN_USERNAME"
	envTurnCredential = "BBCAT_TURN_CREDENTIAL"
)

// ICESource is the raw ICE configuration: a JSON list of browser
// RTCIceServer dictionaries, the STUN/TURN shorthand variables, or both.
type ICESource struct {
	JSON           string
	STUNURLs       string
	TURNURLs       string
	TURNUsername   string
	TURNCredential string
}

// Servers returns the list browsers receive from /webrtc/ice: the JSON
// entries in order, then one entry for the STUN shorthand and one for the
// TURN shorthand. Credentials are kept only on entries that contain a TURN
// URL; a STUN server never needs them and the list is public.
func (src ICESource) Servers() ([]webrtc.ICEServer, error) {
	var out []webrtc.ICEServer

	if raw := strings.TrimSpace(src.JSON); raw != "" {
		var entries []rtcIceServer
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
		}
		for i, e := range entries {
			s, err := iceServer(e.URLs, e.Username, e.Credential, anyScheme)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", envICEServersJSON, i, err)
			}
			out = append(out, s)
		}
	}

	if urls := splitList(src.STUNURLs); len(urls) > 0 {
		s, err := iceServer(urls, "", "", stunOnly)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envStunURLs, err)
		}
		out = append(out, s)
	}

	if urls := splitList(src.TURNURLs); len(urls) > 0 {
		if strings.TrimSpace(src.TURNUsername) == "" || strings.TrimSpace(src.TURNCredential) == "" {
			return nil, fmt.Errorf("%s and %s are required with %s", envTurnUsername, envTurnCredential, envTurnURLs)
		}
		s, err := iceServer(urls, src.TURNUsername, src.TURNCredential, turnOnly)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envTurnURLs, err)
		}
		out = append(out, s)
	}

	return out, nil
}

// rtcIceServer mirrors the WebRTC RTCIceServer dictionary, where "urls" is
// either one string or a list.
type rtcIceServer struct {
	URLs       urlList `json:"urls"`
	Username   string  `json:"username"`
	Credential string  `json:"credential"`
}

type urlList []string

func (l *urlList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*l = []string{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return errors.New(`"urls" must be a string or a list of strings`)
	}
	*l = many
	return nil
}

type schemeRule int

const (
	anyScheme schemeRule = iota
	stunOnly
	turnOnly
)

func (r schemeRule) allows(s stun.SchemeType) bool {
	isTURN := s == stun.SchemeTypeTURN || s == stun.SchemeTypeTURNS
	switch r {
	case stunOnly:
		return !isTURN
	case turnOnly:
		return isTURN
	}
	return true
}

// iceServer validates urls with pion's ICE URI parser and builds one entry.
func iceServer(urls []string, username, credential string, rule schemeRule) (webrtc.ICEServer, error) {
	var s webrtc.ICEServer
	relay := false
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		uri, err := stun.ParseURI(raw)
		if err != nil {
			return s, fmt.Errorf("%q: %w", raw, err)
		}
		if uri.Host == "" {
			return s, fmt.Errorf("%q: missing host", raw)
		}
		if !rule.allows(uri.Scheme) {
			return s, fmt.Errorf("%q: unexpected %s scheme", raw, uri.Scheme)
		}
		if uri.Scheme == stun.SchemeTypeTURN || uri.Scheme == stun.SchemeTypeTURNS {
			relay = true
		}
		s.URLs = append(s.URLs, raw)
	}
	if len(s.URLs) == 0 {
		return s, errors.New("no urls")
	}

	if !relay {
		return s, nil
	}
	username, credential = strings.TrimSpace(username), strings.TrimSpace(credential)
	if username == "" || credential == "" {
		return s, errors.New("turn urls need a username and credential")
	}
	s.Username = username
	s.Credential = credential
	return s, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
