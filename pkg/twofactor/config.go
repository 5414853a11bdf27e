package twofactor

import (
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload" // Load .env file automatically
)

var (
	cfg     Config
	loadErr error
	once    sync.Once
)

// Config carries the environment-driven settings for the lifecycle service.
type Config struct {
	EncryptionKey   string        `env:"TWOFACTOR_ENCRYPTION_KEY"`                         // Base64 32-byte key for secrets at rest; empty disables encryption
	Issuer          string        `env:"TWOFACTOR_ISSUER,required"`                        // Issuer label shown in authenticator apps
	PendingSetupTTL time.Duration `env:"TWOFACTOR_PENDING_SETUP_TTL" envDefault:"10m"`     // Confirmation window for a pending setup
	MaxAttempts     int           `env:"TWOFACTOR_MAX_ATTEMPTS" envDefault:"3"`            // Failed attempts tolerated per window
	AttemptWindow   time.Duration `env:"TWOFACTOR_ATTEMPT_WINDOW" envDefault:"10m"`        // Rolling window attempts are counted over
	LockDuration    time.Duration `env:"TWOFACTOR_LOCK_DURATION" envDefault:"10m"`         // Lockout once the budget is exhausted
	BackupCodeCount int           `env:"TWOFACTOR_BACKUP_CODE_COUNT" envDefault:"10"`      // Recovery codes issued per batch
	Digits          int           `env:"TWOFACTOR_DIGITS" envDefault:"6"`                  // Code length, fixed per credential at provisioning
	Period          int           `env:"TWOFACTOR_PERIOD" envDefault:"30"`                 // TOTP step in seconds
	Skew            int           `env:"TWOFACTOR_SKEW" envDefault:"1"`                    // Accepted steps either side of now; >1 widens the attack window
	LowBackupCodes  int           `env:"TWOFACTOR_LOW_BACKUP_CODE_THRESHOLD" envDefault:"2"` // Remaining-codes warning threshold
}

// LoadConfig loads the configuration from the environment once per process.
// A parse failure is cached alongside the config, so every caller sees it.
func LoadConfig() (Config, error) {
	once.Do(func() {
		loadErr = env.Parse(&cfg)
	})
	if loadErr != nil {
		return Config{}, loadErr
	}
	return cfg, nil
}
