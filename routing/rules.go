package routing

import (
	"fmt"
	"regexp"

	"edgecache/apigw"
)

// defaultRule срабатывает, когда ни одно правило не подошло
var defaultRule = Rule{Name: "default", Strategy: NetworkOnly}

// Compile превращает конфигурацию в упорядоченную таблицу правил
func (c *Config) Compile() ([]Rule, error) {
	rules := make([]Rule, 0, len(c.Rules))
	for i, rc := range c.Rules {
		strategy, err := ParseStrategy(rc.Strategy)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if len(rc.Patterns) == 0 && !rc.Navigation {
			return nil, fmt.Errorf("rule %d: needs patterns or navigation", i)
		}

		name := rc.Name
		if name == "" {
			name = rc.Strategy
		}

		var match func(*apigw.Request) bool
		if rc.Navigation {
			match = func(req *apigw.Request) bool { return req.IsNavigation() }
		}
		if len(rc.Patterns) > 0 {
			paths, err := PathMatcher(rc.Patterns...)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s): %w", i, name, err)
			}
			if nav := match; nav != nil {
				match = func(req *apigw.Request) bool { return nav(req) || paths(req) }
			} else {
				match = paths
			}
		}

		rules = append(rules, Rule{Name: name, Strategy: strategy, Match: match})
	}
	return rules, nil
}

// PathMatcher возвращает предикат, проверяющий путь URL по регулярным выражениям
func PathMatcher(patterns ...string) (func(*apigw.Request) bool, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return func(req *apigw.Request) bool {
		for _, re := range compiled {
			if re.MatchString(req.URL.Path) {
				return true
			}
		}
		return false
	}, nil
}

// Classify возвращает первое подходящее правило или правило network-only
func Classify(rules []Rule, req *apigw.Request) Rule {
	for _, rule := range rules {
		if rule.Match != nil && rule.Match(req) {
			return rule
		}
	}
	return defaultRule
}
