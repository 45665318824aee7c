// Package tick holds diff-driven timers advanced by the world update loop.
package tick

import "time"

// Interval fires once per period of accumulated update time.
type Interval struct {
	period  time.Duration
	current time.Duration
}

// NewInterval создаёт Interval с указанным периодом.
func NewInterval(period time.Duration) Interval {
	return Interval{period: period}
}

// Update добавляет прошедшее время. Отрицательное накопление обнуляется.
func (i *Interval) Update(diff time.Duration) {
	i.current += diff
	if i.current < 0 {
		i.current = 0
	}
}

// Passed возвращает true, если накоплен хотя бы один период.
func (i *Interval) Passed() bool { return i.current >= i.period }

// Reset keeps the overshoot past the period.
func (i *Interval) Reset() {
	if i.period > 0 && i.current >= i.period {
		i.current %= i.period
	}
}

// Аксессоры периода и накопленного времени.
func (i *Interval) Period() time.Duration      { return i.period }
func (i *Interval) SetPeriod(p time.Duration)  { i.period = p }
func (i *Interval) Current() time.Duration     { return i.current }
func (i *Interval) SetCurrent(c time.Duration) { i.current = c }

// Countdown expires once the remaining time drops to zero.
type Countdown struct {
	remaining time.Duration
}

// NewCountdown создаёт Countdown на время d.
func NewCountdown(d time.Duration) Countdown {
	return Countdown{remaining: d}
}

// Update уменьшает остаток, Passed сообщает об истечении, Reset заводит заново.
func (c *Countdown) Update(diff time.Duration) { c.remaining -= diff }
func (c *Countdown) Passed() bool              { return c.remaining <= 0 }
func (c *Countdown) Reset(d time.Duration)     { c.remaining = d }
func (c *Countdown) Remaining() time.Duration  { return c.remaining }
