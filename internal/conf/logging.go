package conf

type LoggingConfig struct {
	Level            string                 `json:"log_level" envconfig:"LOG_LEVEL" default:"info"`
	File             string                 `json:"log_file" envconfig:"LOG_FILE"`
	DisableColors    bool                   `json:"disable_colors" envconfig:"LOG_DISABLE_COLORS"`
	QuoteEmptyFields bool                   `json:"quote_empty_fields" envconfig:"LOG_QUOTE_EMPTY_FIELDS"`
	TSFormat         string                 `json:"ts_format" envconfig:"LOG_TS_FORMAT"`
	Fields           map[string]interface{} `json:"fields" ignored:"true"`
	SQL              string                 `json:"sql" envconfig:"LOG_SQL"`
}
