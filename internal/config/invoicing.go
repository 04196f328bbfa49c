package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// InvoicingDefaults are the values applied to invoice drafts that leave
// them blank.
type InvoicingDefaults struct {
	DueDays        int    `mapstructure:"dueDays"`
	Currency       string `mapstructure:"currency"`
	PaymentTerms   string `mapstructure:"paymentTerms"`
	Notes          string `mapstructure:"notes"`
	Language       string `mapstructure:"language"`
	NumberTemplate string `mapstructure:"numberTemplate"`
}

func DefaultInvoicingDefaults() InvoicingDefaults {
	return InvoicingDefaults{
		DueDays:        14,
		Currency:       "EUR",
		PaymentTerms:   "14 Tage netto",
		Notes:          "",
		Language:       "de",
		NumberTemplate: "{YYYY}-{MM}-{SEQ4}",
	}
}

type InvoicingDefaultsHolder struct {
	current atomic.Value // holds InvoicingDefaults
}

// NewStaticInvoicingDefaults returns a holder that never reloads.
func NewStaticInvoicingDefaults(d InvoicingDefaults) *InvoicingDefaultsHolder {
	holder := &InvoicingDefaultsHolder{}
	holder.current.Store(d)
	return holder
}

func NewInvoicingDefaultsHolder(cfg Config, log *zap.Logger) (*InvoicingDefaultsHolder, error) {
	log = log.Named("config.invoicing")

	v := viper.New()
	if path := strings.TrimSpace(cfg.InvoicingConfigPath); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("invoicing")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/invoicekit")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("INVOICEKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultInvoicingDefaults()
	v.SetDefault("invoicing.dueDays", defaults.DueDays)
	v.SetDefault("invoicing.currency", defaults.Currency)
	v.SetDefault("invoicing.paymentTerms", defaults.PaymentTerms)
	v.SetDefault("invoicing.notes", defaults.Notes)
	v.SetDefault("invoicing.language", defaults.Language)
	v.SetDefault("invoicing.numberTemplate", defaults.NumberTemplate)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	current, err := decodeInvoicingDefaults(v)
	if err != nil {
		return nil, err
	}
	if err := validateInvoicingDefaults(current); err != nil {
		return nil, err
	}

	holder := NewStaticInvoicingDefaults(current)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeInvoicingDefaults(v)
		if err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateInvoicingDefaults(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *InvoicingDefaultsHolder) Get() InvoicingDefaults {
	if h == nil {
		return DefaultInvoicingDefaults()
	}
	return h.current.Load().(InvoicingDefaults)
}

// decodeInvoicingDefaults goes through AllSettings so defaults are merged
// into a partially filled file.
func decodeInvoicingDefaults(v *viper.Viper) (InvoicingDefaults, error) {
	var file struct {
		Invoicing InvoicingDefaults `mapstructure:"invoicing"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return InvoicingDefaults{}, err
	}
	return file.Invoicing, nil
}

func validateInvoicingDefaults(d InvoicingDefaults) error {
	if d.DueDays < 0 {
		return errors.New("invoicing.dueDays cannot be negative")
	}
	if len(strings.TrimSpace(d.Currency)) != 3 {
		return errors.New("invoicing.currency must be an ISO 4217 code")
	}
	if !strings.Contains(d.NumberTemplate, "{SEQ") {
		return errors.New("invoicing.numberTemplate must contain a {SEQ} token")
	}
	return nil
}
