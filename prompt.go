package main

import "strings"

// The five numbered sections and their order are what the report renderer expects.
const analysisPrompt = `
Analyze the following resume based on the provided job description. Provide your analysis in clear, well-formatted Markdown.

**Resume Text:**
{{resume}}

**Job Description:**
{{job_description}}

**Analysis Required:**
1.  **Summary:** Provide a brief, 2-3 sentence summary of the candidate's profile and suitability for the role.
2.  **Keyword Match:** Identify keywords from the job description found in the resume. List them and rate the match from 1-10.
3.  **Missing Skills:** What key skills or qualifications from the job description are missing? Be specific.
4.  **Formatting & Readability Score:** Rate the resume's formatting on a scale of 1-10 and provide one concrete suggestion for improvement.
5.  **Actionable Suggestions:** Give 3-5 bullet-pointed, actionable suggestions to improve the resume for this specific job application.
`

func prompt(resumeText, jobDescription string) string {
	// a single-pass replacer keeps placeholder-looking text inside the resume verbatim
	r := strings.NewReplacer(
		"{{resume}}", resumeText,
		"{{job_description}}", jobDescription,
	)
	return r.Replace(analysisPrompt)
}

func agentInstruction() string {
	return `
You are an expert AI career assistant that reviews resumes against job descriptions.

Follow the analysis structure requested in the user message exactly, keeping the numbered sections in order.
Answer in Markdown only. Base all reasoning on the provided text.
Do not make up data or assume experience not explicitly mentioned.
	`
}
