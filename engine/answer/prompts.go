package answer

// SystemPrompt fixes the assistant's behaviour for every request.
const SystemPrompt = `You are the assistant for a company knowledge base.
Answer the client's question using ONLY the provided context. If the context
does not contain the answer, say that the information is not available.
Always mention the relevant source links in your answer. Be concise and
factual; never invent services, prices, or project details.`

// answerInstruction closes the user message.
const answerInstruction = `Answer the question using only the sources above
and reference the links of the sources you used.`

// NoAnswerText is returned when retrieval finds nothing relevant. No
// generation call is made in that case.
const NoAnswerText = "Unfortunately, I could not find information about this in the knowledge base. Try rephrasing the question or ask about the company's projects and services."

// GenerationFailedText is returned when the provider call fails. The cause
// is logged, never shown to the user.
const GenerationFailedText = "Sorry, an error occurred while composing the answer. Please try again later."
