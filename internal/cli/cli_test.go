package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chronotech-quiz-service/internal/app"
	"chronotech-quiz-service/internal/identity"
	infraredis "chronotech-quiz-service/internal/infra/redis"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	for _, key := range []string{"PORT", "STORE_BACKEND", "REDIS_ADDR", "DATABASE_URL", "AUTH_JWT_SECRET", "APP_ENV", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestTokenCommandIssuesVerifiableToken(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwtSecret: test-secret\n  issuer: chronotech\nlog:\n  level: error\n")

	out := run(t, "token", "--config", path, "--uid", "u1", "--name", "Ada", "--email", "ada@example.com")
	id, err := identity.NewVerifier("test-secret", "chronotech", time.Hour).Verify(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if id.UID != "u1" || id.DisplayName != "Ada" || id.Email != "ada@example.com" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestSeedAndMissionCommandsAgainstRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	path := writeConfig(t, fmt.Sprintf("redis:\n  addr: %q\nlog:\n  level: error\n", mr.Addr()))

	if out := run(t, "seed", "--config", path); !strings.Contains(out, "seeded generations-quiz (4 questions)") {
		t.Fatalf("unexpected seed output %q", out)
	}
	if out := run(t, "mission", "generate", "--config", path); !strings.HasPrefix(out, "created mission ") {
		t.Fatalf("first generate should create, got %q", out)
	}
	if out := run(t, "mission", "generate", "--config", path); !strings.HasPrefix(out, "existing mission ") {
		t.Fatalf("second generate should reuse, got %q", out)
	}

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := infraredis.NewDocStore(client, nil, zap.NewNop())
	defer store.Close()
	quiz, err := app.NewStoreQuizLoader(store).LoadQuiz(context.Background(), "generations-quiz")
	if err != nil {
		t.Fatalf("load seeded quiz: %v", err)
	}
	if quiz.Questions[0].Answer != "Generación X" || quiz.Questions[3].Answer != "Brecha digital" {
		t.Fatalf("unexpected seeded answers %+v", quiz.Questions)
	}
}

func TestBuildRuntimeDefaultsToMemory(t *testing.T) {
	path := writeConfig(t, "log:\n  level: error\n")
	rt, err := loadRuntime(context.Background(), path)
	if err != nil {
		t.Fatalf("load runtime: %v", err)
	}
	defer rt.Close()

	if rt.cfg.UseRedis() {
		t.Fatalf("memory backend expected")
	}
	if rt.services.Reconciler == nil || rt.services.Quizzes == nil || rt.services.Forum == nil {
		t.Fatalf("services not wired: %+v", rt.services)
	}
	if err := rt.loader.SaveQuiz(context.Background(), sampleQuizzes()[0]); err != nil {
		t.Fatalf("save sample quiz: %v", err)
	}
}
