package forward

import (
	"testing"
)

func TestBuildKafkaDefaultTopic(t *testing.T) {
	f, err := Build("kafka", Options{})
	if err != nil || f == nil {
		t.Fatalf("unexpected: %v %v", f, err)
	}
}

func TestBuildRedisRequiresAddr(t *testing.T) {
	_, err := Build("redis", Options{})
	if err == nil {
		t.Fatal("expected error when RedisAddr is empty")
	}
}

func TestBuildRedisWithAddr(t *testing.T) {
	f, err := Build("redis", Options{RedisAddr: "127.0.0.1:0"})
	if err != nil || f == nil {
		t.Fatalf("unexpected: %v %v", f, err)
	}
}

func TestBuildPostgresReturnsError(t *testing.T) {
	f, err := Build("postgres", Options{})
	if err == nil || f != nil {
		t.Fatalf("expected error for postgres adapter")
	}
}

func TestBuildUnknownAdapter(t *testing.T) {
	_, err := Build("does-not-exist", Options{})
	if err == nil {
		t.Fatal("expected error for unknown adapter")
	}
}
