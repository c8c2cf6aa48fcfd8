package orchestrator

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lydianai/agent.ailydian.com/registry"
	"github.com/lydianai/agent.ailydian.com/router"
)

// AgentSpec is one catalog entry: an agent the orchestrator registers at
// startup.
type AgentSpec struct {
	ID                 string   `toml:"id"`
	Name               string   `toml:"name"`
	Category           string   `toml:"category"`
	Capabilities       []string `toml:"capabilities"`
	PriorityLevel      int      `toml:"priority_level"`
	MaxConcurrentTasks int      `toml:"max_concurrent_tasks"`
}

// registration converts a catalog entry to a registry registration.
func (s AgentSpec) registration() registry.Registration {
	return registry.Registration{
		ID:                 s.ID,
		Name:               s.Name,
		Category:           registry.Category(s.Category),
		Capabilities:       s.Capabilities,
		PriorityLevel:      s.PriorityLevel,
		MaxConcurrentTasks: s.MaxConcurrentTasks,
	}
}

// catalogFile is the on-disk catalog format.
type catalogFile struct {
	HeartbeatTimeoutSeconds int         `toml:"heartbeat_timeout_seconds"`
	AssignIntervalSeconds   int         `toml:"assign_interval_seconds"`
	MonitorIntervalSeconds  int         `toml:"monitor_interval_seconds"`
	MaxHistory              int         `toml:"max_history"`
	DefaultStrategy         string      `toml:"default_strategy"`
	Agents                  []AgentSpec `toml:"agent"`
}

// Config configures an Orchestrator.
type Config struct {
	// Catalog lists agents registered at startup. Nil means DefaultCatalog.
	// An explicitly empty catalog starts with no agents.
	Catalog []AgentSpec

	// HeartbeatTimeout before a silent agent is flipped OFFLINE.
	// Default: 60s.
	HeartbeatTimeout time.Duration

	// AssignInterval between assignment sweeps. Default: 1s.
	AssignInterval time.Duration

	// MonitorInterval between performance snapshots. Default: 30s.
	MonitorInterval time.Duration

	// MaxHistory bounds the bus message history. Default: 1000.
	MaxHistory int

	// DefaultStrategy for task assignment. Default: least_loaded.
	DefaultStrategy router.Strategy
}

// DefaultConfig returns configuration with the default catalog and tunables.
func DefaultConfig() Config {
	return Config{
		Catalog:          DefaultCatalog(),
		HeartbeatTimeout: 60 * time.Second,
		AssignInterval:   time.Second,
		MonitorInterval:  30 * time.Second,
		MaxHistory:       1000,
		DefaultStrategy:  router.DefaultStrategy,
	}
}

// LoadConfig reads a TOML catalog file. Omitted tunables keep their
// defaults; an omitted agent list falls back to the default catalog.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var file catalogFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return Config{}, fmt.Errorf("failed to load catalog %s: %w", path, err)
	}

	if file.HeartbeatTimeoutSeconds > 0 {
		cfg.HeartbeatTimeout = time.Duration(file.HeartbeatTimeoutSeconds) * time.Second
	}
	if file.AssignIntervalSeconds > 0 {
		cfg.AssignInterval = time.Duration(file.AssignIntervalSeconds) * time.Second
	}
	if file.MonitorIntervalSeconds > 0 {
		cfg.MonitorInterval = time.Duration(file.MonitorIntervalSeconds) * time.Second
	}
	if file.MaxHistory > 0 {
		cfg.MaxHistory = file.MaxHistory
	}
	if file.DefaultStrategy != "" {
		cfg.DefaultStrategy = router.Strategy(file.DefaultStrategy)
	}
	if file.Agents != nil {
		for i, spec := range file.Agents {
			if err := spec.registration().Validate(); err != nil {
				return Config{}, fmt.Errorf("catalog agent %d (%s): %w", i, spec.ID, err)
			}
		}
		cfg.Catalog = file.Agents
	}

	return cfg, nil
}

// DefaultCatalog returns the ten core clinical agents.
func DefaultCatalog() []AgentSpec {
	return []AgentSpec{
		{
			ID:       "quantum-optimizer",
			Name:     "Quantum Resource Optimizer",
			Category: "quantum",
			Capabilities: []string{
				"or_scheduling", "staff_rostering", "bed_allocation", "quantum_optimization",
			},
			PriorityLevel: 8,
		},
		{
			ID:       "sepsis-prediction",
			Name:     "Sepsis Prediction & Intervention",
			Category: "emergency",
			Capabilities: []string{
				"vital_monitoring", "sepsis_detection", "early_warning", "protocol_activation",
			},
			PriorityLevel: 10,
		},
		{
			ID:       "surgical-safety",
			Name:     "Surgical Safety Checklist",
			Category: "clinical",
			Capabilities: []string{
				"checklist_verification", "instrument_counting", "patient_verification", "computer_vision",
			},
			PriorityLevel: 9,
		},
		{
			ID:       "radiology-reporting",
			Name:     "Radiology Auto-Reporting",
			Category: "clinical",
			Capabilities: []string{
				"image_analysis", "report_generation", "critical_findings", "dicom_processing",
			},
			PriorityLevel: 7,
		},
		{
			ID:       "medication-reconciliation",
			Name:     "Medication Reconciliation",
			Category: "clinical",
			Capabilities: []string{
				"drug_interaction", "dose_checking", "medication_history", "patient_education",
			},
			PriorityLevel: 8,
		},
		{
			ID:       "clinical-trial-matching",
			Name:     "Clinical Trial Matching",
			Category: "research",
			Capabilities: []string{
				"eligibility_screening", "trial_matching", "patient_outreach", "enrollment_tracking",
			},
			PriorityLevel: 5,
		},
		{
			ID:       "readmission-prevention",
			Name:     "Predictive Readmission Prevention",
			Category: "operational",
			Capabilities: []string{
				"risk_scoring", "followup_scheduling", "patient_monitoring", "care_coordination",
			},
			PriorityLevel: 7,
		},
		{
			ID:       "outbreak-detector",
			Name:     "Infectious Disease Outbreak Detector",
			Category: "emergency",
			Capabilities: []string{
				"infection_surveillance", "outbreak_detection", "contact_tracing", "isolation_protocols",
			},
			PriorityLevel: 9,
		},
		{
			ID:       "mental-health-crisis",
			Name:     "Mental Health Crisis Predictor",
			Category: "clinical",
			Capabilities: []string{
				"risk_assessment", "crisis_detection", "suicide_prevention", "psychiatric_referral",
			},
			PriorityLevel: 10,
		},
		{
			ID:       "genomic-therapy",
			Name:     "Genomic Therapy Recommender",
			Category: "research",
			Capabilities: []string{
				"genomic_analysis", "therapy_matching", "precision_medicine", "outcome_prediction",
			},
			PriorityLevel: 6,
		},
	}
}
