package config

// Vocabulary is the versioned lexicon the pipeline reads and the
// discovery stage writes back. Version implements optimistic
// concurrency: a save carrying a stale version is rejected.
type Vocabulary struct {
	Version    int                  `yaml:"version" json:"version"`
	Signals    map[string][]string  `yaml:"signals" json:"signals"`
	Search     map[string][]string  `yaml:"search" json:"search"`
	Discovered map[string][]HotWord `yaml:"discovered" json:"discovered"`
}

// HotWord is a discovered vocabulary term with its decay bookkeeping.
type HotWord struct {
	Word          string  `yaml:"word" json:"word"`
	FirstSeen     string  `yaml:"first_seen" json:"first_seen"`
	LastSeen      string  `yaml:"last_seen" json:"last_seen"`
	TotalMentions int     `yaml:"total_mentions" json:"total_mentions"`
	DecayScore    float64 `yaml:"decay_score" json:"decay_score"`
}

// AllSignals flattens seeded and still-active discovered signals into
// one lowercase-insensitive matching list.
func (v Vocabulary) AllSignals(minDecay float64) []string {
	var out []string
	for _, lang := range []string{"zh", "en"} {
		out = append(out, v.Signals[lang]...)
	}
	for _, lang := range []string{"zh", "en"} {
		for _, hw := range v.Discovered[lang] {
			if hw.DecayScore >= minDecay {
				out = append(out, hw.Word)
			}
		}
	}
	return out
}

// Clone returns a deep copy.
func (v Vocabulary) Clone() Vocabulary {
	cp := Vocabulary{Version: v.Version}
	if v.Signals != nil {
		cp.Signals = make(map[string][]string, len(v.Signals))
		for k, vals := range v.Signals {
			cp.Signals[k] = append([]string(nil), vals...)
		}
	}
	if v.Search != nil {
		cp.Search = make(map[string][]string, len(v.Search))
		for k, vals := range v.Search {
			cp.Search[k] = append([]string(nil), vals...)
		}
	}
	if v.Discovered != nil {
		cp.Discovered = make(map[string][]HotWord, len(v.Discovered))
		for k, vals := range v.Discovered {
			cp.Discovered[k] = append([]HotWord(nil), vals...)
		}
	}
	return cp
}

// DefaultVocabulary seeds the lexicon used before any discovery ran.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Version: 1,
		Signals: map[string][]string{
			"zh": {
				"卡顿", "崩溃", "闪退", "蓝屏", "花屏", "黑屏", "死机",
				"掉驱动", "翻车", "拉胯", "智商税", "后悔", "退货",
				"温度高", "噪音大", "功耗高", "显存不够", "帧数低", "延迟高",
				"太贵", "溢价", "缩缸", "过热",
			},
			"en": {
				"crash", "stutter", "artifact", "overheat", "throttle",
				"driver issue", "black screen", "blue screen", "coil whine",
				"regret", "refund", "fps drop", "frame drop", "lag",
				"overpriced", "too expensive",
			},
		},
		Search: map[string][]string{
			"zh": {"显卡 卡顿", "显卡 崩溃", "显卡 温度", "显卡 驱动", "显卡 值不值"},
			"en": {"gpu crash", "gpu stutter", "gpu overheating", "gpu driver", "gpu worth it"},
		},
		Discovered: map[string][]HotWord{},
	}
}
