// Package resilience provides the circuit breaker guarding outbound
// hub traffic. A dead or flapping upstream trips the breaker so mirror
// runs fail fast instead of stacking thirty-second timeouts per entry;
// after a cool-down a limited number of probe requests decide whether
// the upstream has recovered.
package resilience
