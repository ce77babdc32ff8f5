package scheduler

import "testing"

func TestRedisClientOpt(t *testing.T) {
	opt, err := redisClientOpt("redis://:secret@redis.internal:6380/2", false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opt.Addr != "redis.internal:6380" {
		t.Errorf("addr = %q", opt.Addr)
	}
	if opt.Password != "secret" {
		t.Errorf("password = %q", opt.Password)
	}
	if opt.DB != 2 {
		t.Errorf("db = %d", opt.DB)
	}
	if opt.TLSConfig != nil {
		t.Error("plain redis URL must not carry a TLS config")
	}
}

func TestRedisClientOptTLSInsecure(t *testing.T) {
	opt, err := redisClientOpt("redis://localhost:6379", true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opt.TLSConfig == nil || !opt.TLSConfig.InsecureSkipVerify {
		t.Fatal("insecure flag must produce a skip-verify TLS config")
	}
}

func TestRedisClientOptBadURL(t *testing.T) {
	if _, err := redisClientOpt("not a url", false); err == nil {
		t.Fatal("expected a parse error")
	}
}
