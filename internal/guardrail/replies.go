// ABOUTME: Fixed templated replies for guardrail short-circuits and fallbacks
// ABOUTME: These are never model-generated - safety replies must be deterministic

package guardrail

// CrisisReply is the fixed crisis-resource message. It is never generated:
// when the crisis guardrail trips, this exact text is the reply.
const CrisisReply = `I'm really concerned about what you're going through, and I want to make sure you get support right now.

Please reach out to one of these resources immediately:
- 988 Suicide & Crisis Lifeline: call or text 988 (available 24/7)
- Crisis Text Line: text HOME to 741741
- SAMHSA National Helpline: 1-800-662-4357 (1-800-662-HELP)

If you are in immediate danger, please call 911.

You don't have to go through this alone - these lines are staffed by people who can help right now.`

// OffTopicReply redirects a confidently off-topic message back to the
// assistant's purpose.
const OffTopicReply = `I'm here to help you find substance-abuse treatment and recovery support - things like locating facilities, checking insurance coverage, or scheduling appointments. I'm not able to help with that topic, but if you or someone you know is looking for treatment, I'd be glad to help.`

// UnsafeReplySubstitute replaces a specialist reply that failed response
// safety validation after all regeneration attempts were exhausted.
const UnsafeReplySubstitute = `I want to be careful here: I can't give medical advice or a diagnosis. A licensed clinician at a treatment facility can give you guidance that's safe for your situation. I can help you find a facility, check your insurance coverage, or set up an appointment - just let me know.`
