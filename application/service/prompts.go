package service

const proposalSystemPrompt = `You are a librarian building a tag taxonomy for a document collection.
You will be shown excerpts of documents that belong to one cluster of similar documents.
Reply with a single JSON object and nothing else.`

const proposalTaskPrompt = `The following %d excerpts come from one cluster of related documents.

%s

Propose a category, a subcategory and between 3 and 8 short tags describing this cluster.
Tags should be lowercase noun phrases of one to three words, general enough to apply to
other documents on the same subject.

Reply in exactly this JSON form:
{"category": "...", "subcategory": "...", "tags": [{"name": "...", "description": "one sentence"}]}`

const refineSystemPrompt = `You review automatic tag suggestions for a document.
You may only use tags from the allowed list. Reply with a single JSON object and nothing else.`

const refineTaskPrompt = `Document excerpt:
<document>
%s
</document>

Suggested tags, best first:
%s

Allowed tags:
%s

Return the tags that genuinely describe the document, best first. You may drop suggestions,
reorder them, or add allowed tags that were not suggested.

Reply in exactly this JSON form:
{"tags": ["...", "..."]}`
