package config

import "testing"

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestParseICEServersJSON(t *testing.T) {
	t.Parallel()

	raw := `[
	  {"urls": ["stun:stun.example.com:3478"]},
	  {"urls": "turn:turn.example.com:3478?transport=udp", "username": "user", "credential": "pass"}
	]`

	servers, err := ParseICEServersJSON(raw)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}
	if got := servers[1].URLs; len(got) != 1 || got[0] != "turn:turn.example.com:3478?transport=udp" {
		t.Fatalf("unexpected turn urls: %#v", got)
	}
	cred, ok := servers[1].Credential.(string)
	if !ok || cred != "pass" {
		t.Fatalf("unexpected credential: %#v", servers[1].Credential)
	}
}

func TestParseICEServersJSON_Rejects(t *testing.T) {
	t.Parallel()

	testCases := map[string]string{
		"not json":          `{`,
		"turn without cred": `[{"urls": ["turn:turn.example.com"]}]`,
		"bad scheme":        `[{"urls": ["http://example.com"]}]`,
		"no urls":           `[{"urls": []}]`,
	}
	for name, raw := range testCases {
		if _, err := ParseICEServersJSON(raw); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestICEServersFromEnv_JSONWins(t *testing.T) {
	t.Parallel()

	servers, err := ICEServersFromEnv(envMap(map[string]string{
		EnvICEServersJSON: `[{"urls": "stun:json.example.com"}]`,
		EnvStunURLs:       "stun:ignored.example.com",
	}))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 1 || servers[0].URLs[0] != "stun:json.example.com" {
		t.Fatalf("unexpected servers: %#v", servers)
	}
}

func TestICEServersFromEnv_Convenience(t *testing.T) {
	t.Parallel()

	servers, err := ICEServersFromEnv(envMap(map[string]string{
		EnvStunURLs:       " stun:a.example.com , ,stun:b.example.com",
		EnvTurnURLs:       "turns:t.example.com:5349",
		EnvTurnUsername:   "u",
		EnvTurnCredential: "p",
	}))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}
	if got := servers[0].URLs; len(got) != 2 || got[1] != "stun:b.example.com" {
		t.Fatalf("unexpected stun urls: %#v", got)
	}
	if servers[1].Username != "u" {
		t.Fatalf("unexpected turn username %q", servers[1].Username)
	}
}

func TestICEServersFromEnv_TurnNeedsCreds(t *testing.T) {
	t.Parallel()

	_, err := ICEServersFromEnv(envMap(map[string]string{EnvTurnURLs: "turn:t.example.com"}))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestICEServersFromEnv_Empty(t *testing.T) {
	t.Parallel()

	servers, err := ICEServersFromEnv(envMap(nil))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 0 {
		t.Fatalf("expected no servers, got %#v", servers)
	}
}
