package pipeline

// 各阶段的提示词模板
// %s 处填入待处理文本（enhance 阶段另附角色档案 JSON）

const preprocessPrompt = `你是一个小说文本整理助手。请把下面的原始小说文本整理为带标记的格式：
1. 每句对话之前单独一行标注说话人，格式为 [说话人名]
2. 角色的内心独白用 *{...}* 包裹
3. 除了添加上述标记外，不得增删或改写任何叙述内容
4. 保持原有段落顺序

原始文本：
%s`

const enhancePrompt = `你是一个视觉小说插图策划。下面是带说话人标记的脚本文本和角色设定 JSON。
请在每个需要插图的说话人台词行的上一行插入提示词注释，格式严格为两行：
; NAI Prompt for <角色名>: Positive=[<正向提示词>] Negative=[<负向提示词>]
; IMG Prompt for <角色名>: Positive=[<正向提示词>] Negative=[<负向提示词>]
要求：
1. 角色名必须与角色设定 JSON 中的键完全一致
2. 正向提示词以角色设定中的基础提示词开头，再追加当前场景的动作、表情、构图描述（英文 Danbooru 标签风格）
3. 除了插入注释行之外，原文内容一个字都不能改动

角色设定 JSON：
%s

脚本文本：
%s`

const bgmPrompt = `你是一个视觉小说音效设计师。请通读下面的脚本文本，在场景氛围发生变化的位置插入 BGM 提示注释，格式为：
; BGM: <氛围描述>
要求：
1. 只插入注释行，不改动任何原有内容
2. 注释数量宁少勿多，只在氛围确实变化时插入

脚本文本：
%s`

const kagConvertPrompt = `你是一个 KiriKiri2/KAG 脚本工程师。请把下面带标记的文本转换为 KAG 脚本：
1. [说话人名] 标记转换为 KAG 的 [name] 标签行
2. 对话用「」包裹，内心独白用（）包裹，每句台词后加 [p]
3. 每个提示词注释（; NAI Prompt for... / ; IMG Prompt for...）原样保留，并在其后紧跟一行图片占位标记 [INSERT_IMAGE_HERE:<角色名>]
4. 每句台词之前插入一行语音占位标记 [INSERT_AUDIO_HERE:<说话人名>]
5. 除上述转换外不得增删内容

文本：
%s`
