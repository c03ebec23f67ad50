package config

import (
	"strings"
	"testing"
)

func TestParseICEServersJSON(t *testing.T) {
	t.Parallel()

	raw := `[
	  {
	    "urls": ["stun:stun.example.com:3478", " "]
	  },
	  {
	    "urls": ["turn:turn.example.com:3478?transport=udp"],
	    "username": " user ",
	    "credential": "pass"
	  }
	]`

	servers, err := ParseICEServersJSON(raw)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}

	if got := servers[0].URLs; len(got) != 1 || got[0] != "stun:stun.example.com:3478" {
		t.Fatalf("unexpected stun urls: %#v", got)
	}
	if got := servers[1].Username; got != "user" {
		t.Fatalf("unexpected username: %q", got)
	}
	cred, ok := servers[1].Credential.(string)
	if !ok || cred != "pass" {
		t.Fatalf("unexpected credential: %#v", servers[1].Credential)
	}
}

func TestParseICEServersJSON_SupportsSingleStringURLs(t *testing.T) {
	t.Parallel()

	servers, err := ParseICEServersJSON(`[{"urls": "stun:stun.example.com:3478"}]`)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("expected 1 server, got %d", len(servers))
	}
	if got := servers[0].URLs; len(got) != 1 || got[0] != "stun:stun.example.com:3478" {
		t.Fatalf("unexpected urls: %#v", got)
	}
}

func TestParseICEServersJSON_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":            `{`,
		"turn without creds":  `[{"urls": ["turn:turn.example.com:3478"]}]`,
		"turn without cred":   `[{"urls": ["turns:turn.example.com:5349"], "username": "u"}]`,
		"unsupported scheme":  `[{"urls": ["https://example.com"]}]`,
		"missing urls":        `[{"username": "u"}]`,
		"urls wrong type":     `[{"urls": 5}]`,
		"only blank url":      `[{"urls": [""]}]`,
		"object not an array": `{"urls": ["stun:a"]}`,
	}
	for name, raw := range cases {
		if _, err := ParseICEServersJSON(raw); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParseICEServersFromConvenienceEnv(t *testing.T) {
	t.Parallel()

	servers, err := ParseICEServersFromConvenienceEnv(
		"stun:stun.example.com:3478, stun:stun2.example.com:3478",
		"turn:turn.example.com:3478?transport=udp",
		"user",
		"pass",
	)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}
	if len(servers[0].URLs) != 2 {
		t.Fatalf("unexpected stun urls: %#v", servers[0].URLs)
	}
	if servers[0].Username != "" || servers[0].Credential != nil {
		t.Fatalf("stun server should not have creds: %#v", servers[0])
	}
	if servers[1].Username != "user" {
		t.Fatalf("unexpected turn username: %q", servers[1].Username)
	}
	if servers[1].Credential.(string) != "pass" {
		t.Fatalf("unexpected turn credential: %#v", servers[1].Credential)
	}
}

func TestParseICEServersFromConvenienceEnv_TURNRequiresCreds(t *testing.T) {
	t.Parallel()

	_, err := ParseICEServersFromConvenienceEnv("", "turn:turn.example.com:3478", "user", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), envTurnCredential) {
		t.Fatalf("error should name %s: %v", envTurnCredential, err)
	}
}

func TestICESources_Precedence(t *testing.T) {
	t.Parallel()

	file := []iceServerEntry{{URLs: stringOrStringSlice{"stun:file.example.com"}}}

	servers, err := iceSources{File: file}.resolve()
	if err != nil || len(servers) != 1 || servers[0].URLs[0] != "stun:file.example.com" {
		t.Fatalf("file only: servers=%#v err=%v", servers, err)
	}

	servers, err = iceSources{StunURLs: "stun:env.example.com", File: file}.resolve()
	if err != nil || len(servers) != 1 || servers[0].URLs[0] != "stun:env.example.com" {
		t.Fatalf("stun over file: servers=%#v err=%v", servers, err)
	}

	servers, err = iceSources{JSON: `[{"urls":"stun:json.example.com"}]`, StunURLs: "stun:env.example.com", File: file}.resolve()
	if err != nil || len(servers) != 1 || servers[0].URLs[0] != "stun:json.example.com" {
		t.Fatalf("json over all: servers=%#v err=%v", servers, err)
	}

	servers, err = iceSources{}.resolve()
	if err != nil || servers != nil {
		t.Fatalf("empty: servers=%#v err=%v", servers, err)
	}
}
