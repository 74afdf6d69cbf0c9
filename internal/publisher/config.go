package publisher

import "time"

// Config holds credentials for the DirectAdmin panel that provisions
// subdomains and the FTP account that receives the generated files.
type Config struct {
	// Panel endpoint, e.g. "https://panel.example.com:2222".
	PanelURL      string `yaml:"panel_url"`
	PanelUser     string `yaml:"panel_user"`
	PanelPassword string `yaml:"panel_password"`

	// BaseDomain is the apex under which subdomains are created.
	BaseDomain string `yaml:"base_domain"`

	// FTP endpoint, host:port.
	FTPAddr     string `yaml:"ftp_addr"`
	FTPUser     string `yaml:"ftp_user"`
	FTPPassword string `yaml:"ftp_password"`

	Timeout time.Duration `yaml:"timeout"`
}

const defaultTimeout = 30 * time.Second

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}
