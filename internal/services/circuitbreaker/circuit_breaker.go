// Package circuitbreaker implements a Redis-backed circuit breaker so that
// every replica of the statistics service shares one view of a failing
// downstream (the event consumer). State lives entirely in Redis; the
// breaker itself is stateless and safe to construct per use.
package circuitbreaker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// State is the classic three-state breaker model.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "HalfOpen"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Config tunes the breaker thresholds. Timeout is how long the breaker
// stays Open before allowing a half-open probe.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	ResetAfter       time.Duration
}

const (
	keyPrefix     = "circuit_breaker:"
	opTimeout     = time.Second
	maxCASRetries = 3
)

// Success and failure recording must be atomic across replicas, so both
// run as Lua scripts: a plain GET/INCR/SET sequence from two replicas can
// interleave and lose a state transition.
//
// recordSuccess keys: state, failure_count, success_count, last_state_change.
// args: success threshold, now (unix seconds).
// Returns 2 when the breaker closed, 1 for a half-open success, 0 otherwise.
const recordSuccessScript = `
	local state = tonumber(redis.call('GET', KEYS[1]) or '0')
	redis.call('SET', KEYS[2], 0)

	if state == 2 then
		local count = redis.call('INCR', KEYS[3])
		if count >= tonumber(ARGV[1]) then
			redis.call('SET', KEYS[1], 0)
			redis.call('SET', KEYS[3], 0)
			redis.call('SET', KEYS[4], ARGV[2])
			return 2
		end
		return 1
	end
	return 0
`

// recordFailure keys: state, failure_count, last_failure_time,
// last_state_change, success_count. args: failure threshold, now.
// Any failure while half-open reopens immediately.
// Returns 1 when the breaker opened, 0 otherwise.
const recordFailureScript = `
	local state = tonumber(redis.call('GET', KEYS[1]) or '0')
	local failures = redis.call('INCR', KEYS[2])
	redis.call('SET', KEYS[3], ARGV[2])

	if (state == 0 and failures >= tonumber(ARGV[1])) or state == 2 then
		redis.call('SET', KEYS[1], 1)
		redis.call('SET', KEYS[4], ARGV[2])
		redis.call('SET', KEYS[5], '0')
		return 1
	end
	return 0
`

type CircuitBreaker struct {
	redis   *redis.Client
	service string
	config  Config
	prefix  string
}

func (cb *CircuitBreaker) stateKey() string       { return cb.prefix + "state" }
func (cb *CircuitBreaker) failureKey() string     { return cb.prefix + "failure_count" }
func (cb *CircuitBreaker) successKey() string     { return cb.prefix + "success_count" }
func (cb *CircuitBreaker) lastFailureKey() string { return cb.prefix + "last_failure_time" }
func (cb *CircuitBreaker) lastChangeKey() string  { return cb.prefix + "last_state_change" }

// NewWithConfig builds a breaker for the named downstream service. Redis
// keys are namespaced per service so independent downstreams trip
// independently.
func NewWithConfig(redisClient *redis.Client, serviceName string, config Config) *CircuitBreaker {
	cb := &CircuitBreaker{
		redis:   redisClient,
		service: serviceName,
		config:  config,
		prefix:  keyPrefix + serviceName + ":",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		fiberlog.Errorf("circuit breaker %s: redis unreachable: %v", serviceName, err)
	}

	cb.seedState(ctx)
	return cb
}

// seedState writes the Closed baseline the first time a service name is
// seen, so the Lua scripts always read concrete values.
func (cb *CircuitBreaker) seedState(ctx context.Context) {
	exists, err := cb.redis.Exists(ctx, cb.stateKey()).Result()
	if err != nil {
		fiberlog.Errorf("circuit breaker %s: state check failed: %v", cb.service, err)
		return
	}
	if exists > 0 {
		return
	}

	pipe := cb.redis.Pipeline()
	pipe.Set(ctx, cb.stateKey(), int(Closed), 0)
	pipe.Set(ctx, cb.failureKey(), 0, 0)
	pipe.Set(ctx, cb.successKey(), 0, 0)
	pipe.Set(ctx, cb.lastChangeKey(), time.Now().Unix(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		fiberlog.Errorf("circuit breaker %s: seed failed: %v", cb.service, err)
	}
}

// CanExecute reports whether a call to the downstream should be attempted.
// When Redis itself is unavailable the breaker fails open and allows the
// call: blocking deliveries on cache trouble would be worse than trying.
func (cb *CircuitBreaker) CanExecute() bool {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	state, err := cb.currentState(ctx)
	if err != nil {
		fiberlog.Errorf("circuit breaker %s: state read failed, allowing call: %v", cb.service, err)
		return true
	}

	switch state {
	case Closed, HalfOpen:
		return true
	case Open:
		lastFailure, err := cb.redis.Get(ctx, cb.lastFailureKey()).Int64()
		if err != nil {
			fiberlog.Errorf("circuit breaker %s: last failure read failed: %v", cb.service, err)
			return false
		}
		if time.Since(time.Unix(lastFailure, 0)) > cb.config.Timeout {
			return cb.transition(HalfOpen)
		}
		return false
	default:
		return false
	}
}

// RecordSuccess clears the failure streak and, while half-open, counts
// toward closing the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	keys := []string{cb.stateKey(), cb.failureKey(), cb.successKey(), cb.lastChangeKey()}
	result, err := cb.redis.Eval(ctx, recordSuccessScript, keys,
		cb.config.SuccessThreshold, time.Now().Unix()).Int()
	if err != nil {
		fiberlog.Errorf("circuit breaker %s: record success failed: %v", cb.service, err)
		return
	}
	if result == 2 {
		fiberlog.Infof("circuit breaker %s: closed after recovery", cb.service)
	}
}

// RecordFailure counts a failed call and opens the breaker once the
// threshold is reached (or immediately, when the half-open probe fails).
func (cb *CircuitBreaker) RecordFailure() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	keys := []string{cb.stateKey(), cb.failureKey(), cb.lastFailureKey(), cb.lastChangeKey(), cb.successKey()}
	result, err := cb.redis.Eval(ctx, recordFailureScript, keys,
		cb.config.FailureThreshold, time.Now().Unix()).Int()
	if err != nil {
		fiberlog.Errorf("circuit breaker %s: record failure failed: %v", cb.service, err)
		return
	}
	if result == 1 {
		fiberlog.Warnf("circuit breaker %s: opened", cb.service)
	}
}

// GetState returns the shared state, defaulting to Closed when Redis
// cannot be read.
func (cb *CircuitBreaker) GetState() State {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	state, err := cb.currentState(ctx)
	if err != nil {
		fiberlog.Errorf("circuit breaker %s: state read failed, reporting Closed: %v", cb.service, err)
		return Closed
	}
	return state
}

// Reset forces the breaker back to Closed with zeroed counters.
func (cb *CircuitBreaker) Reset() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pipe := cb.redis.Pipeline()
	pipe.Set(ctx, cb.stateKey(), int(Closed), 0)
	pipe.Set(ctx, cb.failureKey(), 0, 0)
	pipe.Set(ctx, cb.successKey(), 0, 0)
	pipe.Set(ctx, cb.lastChangeKey(), time.Now().Unix(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		fiberlog.Errorf("circuit breaker %s: reset failed: %v", cb.service, err)
	}
}

func (cb *CircuitBreaker) currentState(ctx context.Context) (State, error) {
	raw, err := cb.redis.Get(ctx, cb.stateKey()).Result()
	if err != nil {
		return Closed, fmt.Errorf("failed to get circuit breaker state: %w", err)
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return Closed, fmt.Errorf("invalid state value '%s': %w", raw, err)
	}
	return State(value), nil
}

// transition moves the breaker to newState under WATCH so two replicas
// probing simultaneously do not both rewrite the state.
func (cb *CircuitBreaker) transition(newState State) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for attempt := range maxCASRetries {
		err := cb.redis.Watch(ctx, func(tx *redis.Tx) error {
			current, err := cb.currentState(ctx)
			if err != nil {
				return err
			}
			if current == newState {
				return nil
			}

			pipe := tx.TxPipeline()
			pipe.Set(ctx, cb.stateKey(), int(newState), 0)
			pipe.Set(ctx, cb.lastChangeKey(), time.Now().Unix(), 0)
			if newState != HalfOpen {
				pipe.Set(ctx, cb.successKey(), 0, 0)
			}
			_, err = pipe.Exec(ctx)
			return err
		}, cb.stateKey())

		if err == nil {
			fiberlog.Debugf("circuit breaker %s: now %s", cb.service, newState)
			return true
		}
		if err != redis.TxFailedErr {
			fiberlog.Errorf("circuit breaker %s: transition failed: %v", cb.service, err)
			return false
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}

	fiberlog.Errorf("circuit breaker %s: transition failed after %d attempts", cb.service, maxCASRetries)
	return false
}
