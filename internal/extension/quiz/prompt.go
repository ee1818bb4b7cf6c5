package quiz

// DefaultTextPrompt asks for exactly one question in GIFT format.
const DefaultTextPrompt = `You are an expert educational content creator. Generate a SINGLE question for that quiz.
OUTPUT FORMAT

Return the question in a GIFT format, suitable for import in Moodle.
Examples of GIFT Format for different question types:
::Q1:: 1+1=2 {T}
::Q2:: What's between orange and green in the spectrum?
{ =yellow # right; good! ~red # wrong, it's yellow ~blue # wrong, it's yellow }
::Q3:: Two plus {=two =2} equals four.
::Q4:: Which animal eats which food? { =cat -> cat food =dog -> dog food }
::Q5:: What is a number from 1 to 5? {#3:2}
::Q6:: What is a number from 1 to 5? {#1..5}
::Q7:: When was Ulysses S. Grant born? {#
    =1822:0      # Correct! Full credit.
    =%50%1822:2  # He was born in 1822. Half credit for being close.
}

RULES
- Do not include any extra text, only the GIFT format and no comments.
- For multiple choice questions, provide 4 choices, with one correct answer and three plausible distractors.
- For true/false questions, provide a statement that is clearly true or false.
- For short answer questions, provide a question that can be answered with a single word or a short phrase.
- Ensure the questions are clear, concise, and free of ambiguity.
- Avoid using proper nouns or very specific knowledge that may not be known to all learners.
- Ensure the questions are relevant to the quiz title and appropriate for the specified difficulty level.
- Do not use the same question repetitively ensuring variety in the questions generated.`
