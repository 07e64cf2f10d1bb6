package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MarkoPoloResearchLab/cafestock/internal/httpapi"
	"github.com/MarkoPoloResearchLab/cafestock/internal/lock"
	"github.com/MarkoPoloResearchLab/cafestock/internal/mailer"
	"github.com/MarkoPoloResearchLab/cafestock/internal/scheduler"
	"github.com/MarkoPoloResearchLab/cafestock/internal/store/retry"
	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
)

const (
	envPrefix = "CAFESTOCK"

	flagConfig           = "config"
	flagStoreDriver      = "store-driver"
	flagStoreURL         = "store-url"
	flagSheetsCredential = "sheets-credentials-file"
	flagBusinessTimezone = "business-timezone"
	flagRedisURL         = "redis-url"
	flagListenAddr       = "listen-addr"
	flagActor            = "actor"

	configKeyStoreDriver        = "store_driver"
	configKeyStoreURL           = "store_url"
	configKeySheetsCredentials  = "sheets_credentials_file"
	configKeySheetsRequireTabs  = "sheets_require_tabs"
	configKeyBusinessTimezone   = "business_timezone"
	configKeyRateLimitBackoff   = "retry.rate_limit_backoff"
	configKeyServerErrorBackoff = "retry.server_error_backoff"
	configKeyRedisURL           = "redis_url"
	configKeyLockTTL            = "lock_ttl"
	configKeyListenAddr         = "listen_addr"
	configKeyAllowedOrigins     = "allowed_origins"
	configKeySessionSigningKey  = "session.signing_key"
	configKeySessionIssuer      = "session.issuer"
	configKeySessionCookieName  = "session.cookie_name"
	configKeyNotifyCooldown     = "notify.cooldown"
	configKeyNotifyRecipients   = "notify.recipients"
	configKeySMTP               = "smtp"
	configKeySchedule           = "schedule"
	configKeyVirtualItems       = "virtual_items"
	configKeyActor              = "actor"
	configKeyTablesPrefix       = "tables."

	driverGorm   = "gorm"
	driverPgx    = "pgx"
	driverSheets = "sheets"
	driverXLSX   = "xlsx"
	driverMemory = "memory"

	defaultStoreDriver      = driverGorm
	defaultStoreURL         = "sqlite:///tmp/cafestock.db"
	defaultBusinessTimezone = "America/Los_Angeles"
	defaultNotifyCooldown   = 60 * time.Minute
	defaultActor            = "cli"
)

// appConfig is the fully resolved runtime configuration.
type appConfig struct {
	StoreDriver           string
	StoreURL              string
	SheetsCredentialsFile string
	SheetsRequireTabs     bool
	BusinessTimezone      string
	Tables                inventory.Tables
	Retry                 retry.Config
	RedisURL              string
	LockTTL               time.Duration
	HTTP                  httpapi.Config
	NotifyCooldown        time.Duration
	NotifyRecipients      []string
	SMTP                  mailer.SMTPConfig
	Schedule              string
	VirtualItems          []inventory.VirtualItemRule
	Actor                 string
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	bindings := map[string]string{
		configKeyStoreDriver:       flagStoreDriver,
		configKeyStoreURL:          flagStoreURL,
		configKeySheetsCredentials: flagSheetsCredential,
		configKeyBusinessTimezone:  flagBusinessTimezone,
		configKeyRedisURL:          flagRedisURL,
		configKeyListenAddr:        flagListenAddr,
		configKeyActor:             flagActor,
	}
	for key, flagName := range bindings {
		flag := cmd.Flags().Lookup(flagName)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	defaultTables := inventory.DefaultTables()
	v.SetDefault(configKeyStoreDriver, defaultStoreDriver)
	v.SetDefault(configKeyStoreURL, defaultStoreURL)
	v.SetDefault(configKeySheetsCredentials, "")
	v.SetDefault(configKeySheetsRequireTabs, false)
	v.SetDefault(configKeyBusinessTimezone, defaultBusinessTimezone)
	v.SetDefault(configKeyRateLimitBackoff, retry.DefaultRateLimitBackoff)
	v.SetDefault(configKeyServerErrorBackoff, retry.DefaultServerErrorBackoff)
	v.SetDefault(configKeyRedisURL, "")
	v.SetDefault(configKeyLockTTL, lock.DefaultTTL)
	v.SetDefault(configKeyListenAddr, ":8080")
	v.SetDefault(configKeyAllowedOrigins, "")
	v.SetDefault(configKeySessionSigningKey, "")
	v.SetDefault(configKeySessionIssuer, "")
	v.SetDefault(configKeySessionCookieName, "")
	v.SetDefault(configKeyNotifyCooldown, defaultNotifyCooldown)
	v.SetDefault(configKeyNotifyRecipients, "")
	v.SetDefault(configKeySMTP+".host", "")
	v.SetDefault(configKeySMTP+".port", 587)
	v.SetDefault(configKeySMTP+".username", "")
	v.SetDefault(configKeySMTP+".password", "")
	v.SetDefault(configKeySMTP+".from", "")
	v.SetDefault(configKeySchedule, scheduler.DefaultSchedule)
	v.SetDefault(configKeyActor, defaultActor)
	for key, name := range tableKeys(defaultTables) {
		v.SetDefault(configKeyTablesPrefix+key, name)
	}
}

func tableKeys(tables inventory.Tables) map[string]string {
	return map[string]string{
		"purchases":      tables.Purchases,
		"usage":          tables.Usage,
		"adjustments":    tables.Adjustments,
		"actions":        tables.Actions,
		"catalog":        tables.Catalog,
		"recipes":        tables.Recipes,
		"sales":          tables.Sales,
		"email_log":      tables.EmailLog,
		"reorder":        tables.Reorder,
		"manual_reorder": tables.ManualReorder,
	}
}

// loadConfig layers defaults, the optional config file, CAFESTOCK_* env vars and flags.
func loadConfig(v *viper.Viper, cmd *cobra.Command) (appConfig, error) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := bindFlags(v, cmd); err != nil {
		return appConfig{}, err
	}
	if configFile, _ := cmd.Flags().GetString(flagConfig); strings.TrimSpace(configFile) != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return appConfig{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := appConfig{
		StoreDriver:           strings.ToLower(strings.TrimSpace(v.GetString(configKeyStoreDriver))),
		StoreURL:              strings.TrimSpace(v.GetString(configKeyStoreURL)),
		SheetsCredentialsFile: strings.TrimSpace(v.GetString(configKeySheetsCredentials)),
		SheetsRequireTabs:     v.GetBool(configKeySheetsRequireTabs),
		BusinessTimezone:      strings.TrimSpace(v.GetString(configKeyBusinessTimezone)),
		Tables: inventory.Tables{
			Purchases:     v.GetString(configKeyTablesPrefix + "purchases"),
			Usage:         v.GetString(configKeyTablesPrefix + "usage"),
			Adjustments:   v.GetString(configKeyTablesPrefix + "adjustments"),
			Actions:       v.GetString(configKeyTablesPrefix + "actions"),
			Catalog:       v.GetString(configKeyTablesPrefix + "catalog"),
			Recipes:       v.GetString(configKeyTablesPrefix + "recipes"),
			Sales:         v.GetString(configKeyTablesPrefix + "sales"),
			EmailLog:      v.GetString(configKeyTablesPrefix + "email_log"),
			Reorder:       v.GetString(configKeyTablesPrefix + "reorder"),
			ManualReorder: v.GetString(configKeyTablesPrefix + "manual_reorder"),
		}.WithDefaults(),
		Retry: retry.Config{
			RateLimitBackoff:   v.GetDuration(configKeyRateLimitBackoff),
			ServerErrorBackoff: v.GetDuration(configKeyServerErrorBackoff),
		},
		RedisURL: strings.TrimSpace(v.GetString(configKeyRedisURL)),
		LockTTL:  v.GetDuration(configKeyLockTTL),
		HTTP: httpapi.Config{
			ListenAddr:        strings.TrimSpace(v.GetString(configKeyListenAddr)),
			AllowedOrigins:    stringList(v, configKeyAllowedOrigins),
			SessionSigningKey: v.GetString(configKeySessionSigningKey),
			SessionIssuer:     strings.TrimSpace(v.GetString(configKeySessionIssuer)),
			SessionCookieName: strings.TrimSpace(v.GetString(configKeySessionCookieName)),
		},
		NotifyCooldown:   v.GetDuration(configKeyNotifyCooldown),
		NotifyRecipients: stringList(v, configKeyNotifyRecipients),
		SMTP: mailer.SMTPConfig{
			Host:     strings.TrimSpace(v.GetString(configKeySMTP + ".host")),
			Port:     v.GetInt(configKeySMTP + ".port"),
			Username: v.GetString(configKeySMTP + ".username"),
			Password: v.GetString(configKeySMTP + ".password"),
			From:     strings.TrimSpace(v.GetString(configKeySMTP + ".from")),
		},
		Schedule: strings.TrimSpace(v.GetString(configKeySchedule)),
		Actor:    strings.TrimSpace(v.GetString(configKeyActor)),
	}
	if v.IsSet(configKeyVirtualItems) {
		if err := v.UnmarshalKey(configKeyVirtualItems, &cfg.VirtualItems); err != nil {
			return appConfig{}, fmt.Errorf("%s: %w", configKeyVirtualItems, err)
		}
	}
	cfg.HTTP.NotifyRecipients = cfg.NotifyRecipients
	cfg.HTTP.NotifyCooldown = cfg.NotifyCooldown
	return cfg, cfg.validate()
}

func (cfg appConfig) validate() error {
	switch cfg.StoreDriver {
	case driverGorm, driverPgx, driverSheets, driverXLSX:
		if cfg.StoreURL == "" {
			return fmt.Errorf("%s is required for store driver %s", configKeyStoreURL, cfg.StoreDriver)
		}
	case driverMemory:
	default:
		return fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
	if cfg.BusinessTimezone == "" {
		return fmt.Errorf("%s is required", configKeyBusinessTimezone)
	}
	if cfg.NotifyCooldown < 0 {
		return fmt.Errorf("%s must not be negative", configKeyNotifyCooldown)
	}
	return nil
}

// stringList accepts either a YAML list or a comma-separated env/flag value.
func stringList(v *viper.Viper, key string) []string {
	values := v.GetStringSlice(key)
	if len(values) == 1 {
		return httpapi.ParseList(values[0])
	}
	normalized := make([]string, 0, len(values))
	for _, value := range values {
		normalized = append(normalized, httpapi.ParseList(value)...)
	}
	return normalized
}
