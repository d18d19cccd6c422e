/*
Package hal models the single RISC-V hart the kernel runs on.

The kernel core never touches hardware directly. It consumes three narrow
primitives from this package:

  - Interrupt masking: Hart.SaveDisable returns the previous mask as an opaque
    Flags token and Hart.Restore puts it back. Masking is the only mutual
    exclusion primitive below the process layer.
  - Context switching: every process owns a Context. Hart.Switch hands the
    hart to the incoming context and parks the outgoing one until some later
    switch resumes it.
  - The timer vector: a handler registered for VectorTimer runs once per
    timer interrupt. Interrupts raised while the hart is masked stay pending
    and are delivered as soon as the mask is restored.

# Execution Model

Each process is backed by a goroutine, but only the goroutine that currently
holds the hart executes. A Context switch is a baton hand-off: the outgoing
goroutine blocks on its own resume channel before the incoming one may touch
kernel state, so kernel data structures need no locks of their own.

Timer interrupts can be raised from any goroutine (see Timer), but they are
only ever dispatched on the goroutine holding the hart, at Restore or Poll.
*/
package hal
