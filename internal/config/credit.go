package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// CreditPolicy controls how overdue invoices are classified for display.
type CreditPolicy struct {
	AgingBuckets []AgingBucket `mapstructure:"agingBuckets"`
}

// AgingBucket labels a range of days overdue. A nil MaxDays means open-ended.
type AgingBucket struct {
	Label   string `mapstructure:"label"`
	MinDays int    `mapstructure:"minDays"`
	MaxDays *int   `mapstructure:"maxDays"`
}

func DefaultCreditPolicy() CreditPolicy {
	return CreditPolicy{
		AgingBuckets: []AgingBucket{
			{Label: "0-30", MinDays: 0, MaxDays: intPtr(30)},
			{Label: "31-60", MinDays: 31, MaxDays: intPtr(60)},
			{Label: "60+", MinDays: 61, MaxDays: nil},
		},
	}
}

func intPtr(v int) *int { return &v }

// BucketFor returns the label of the aging bucket covering daysOverdue.
func (p CreditPolicy) BucketFor(daysOverdue int) string {
	for _, bucket := range p.AgingBuckets {
		if daysOverdue < bucket.MinDays {
			continue
		}
		if bucket.MaxDays == nil || daysOverdue <= *bucket.MaxDays {
			return bucket.Label
		}
	}
	return ""
}

type CreditPolicyHolder struct {
	current atomic.Value // holds CreditPolicy
}

func NewCreditPolicyHolder() (*CreditPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("credit")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/fiado/config")
	v.AddConfigPath("/etc/fiado")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FIADO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultCreditPolicy()
		v.SetDefault("credit.agingBuckets", defaults.AgingBuckets)
	}

	var policy CreditPolicy
	if err := v.UnmarshalKey("credit", &policy); err != nil {
		return nil, err
	}
	if err := validateCreditPolicy(policy); err != nil {
		return nil, err
	}

	holder := &CreditPolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CreditPolicy
		if err := v.UnmarshalKey("credit", &updated); err != nil {
			log.Printf("[credit-policy] reload failed: %v", err)
			return
		}
		if err := validateCreditPolicy(updated); err != nil {
			log.Printf("[credit-policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[credit-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *CreditPolicyHolder) Get() CreditPolicy {
	return h.current.Load().(CreditPolicy)
}

// NewStaticCreditPolicyHolder wraps a fixed policy, used by tests.
func NewStaticCreditPolicyHolder(policy CreditPolicy) *CreditPolicyHolder {
	holder := &CreditPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func validateCreditPolicy(policy CreditPolicy) error {
	if len(policy.AgingBuckets) == 0 {
		return errors.New("credit.agingBuckets cannot be empty")
	}
	return nil
}
